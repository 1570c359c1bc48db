package model

import "time"

// IdentityStatus represents the health state of a scraping identity.
type IdentityStatus string

const (
	IdentityActive               IdentityStatus = "active"
	IdentityVerificationRequired IdentityStatus = "verification_required"
	IdentityCooldown             IdentityStatus = "cooldown"
	IdentityBanned               IdentityStatus = "banned"
)

// Identity is a reusable scraping credential pair managed by the pool.
// Credential fields hold encrypted envelopes, never plaintext.
type Identity struct {
	ID                        string         `json:"id"`
	Label                     string         `json:"label"`
	EncryptedEmail            string         `json:"-"`
	EncryptedPassword         string         `json:"-"`
	EncryptedRecoveryEmail    string         `json:"-"`
	EncryptedRecoveryPassword string         `json:"-"`
	Status                    IdentityStatus `json:"status"`
	ScrapesToday              int            `json:"scrapes_today"`
	TotalScrapes              int            `json:"total_scrapes"`
	FailureCount              int            `json:"failure_count"`
	LastUsedAt                *time.Time     `json:"last_used_at,omitempty"`
	CooldownUntil             *time.Time     `json:"cooldown_until,omitempty"`
	ScrapesDayReset           *time.Time     `json:"scrapes_day_reset,omitempty"`
	LastErrorMessage          string         `json:"last_error_message,omitempty"`
	CreatedAt                 time.Time      `json:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at"`
}

// InCooldown reports whether the identity's cooldown is still in effect.
func (i *Identity) InCooldown(now time.Time) bool {
	return i.CooldownUntil != nil && i.CooldownUntil.After(now)
}

// Session holds the encrypted session material attached 1:1 to an identity.
// The cookie blob is overwritten whole on every successful re-authentication.
type Session struct {
	IdentityID       string    `json:"identity_id"`
	EncryptedCookies string    `json:"-"`
	ExpiresAt        time.Time `json:"expires_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
