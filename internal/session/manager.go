package session

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/store"
)

const (
	defaultLifetime     = 30 * 24 * time.Hour
	defaultRefreshAhead = 7 * 24 * time.Hour
)

// Manager persists encrypted per-identity session material and governs
// expiry.
type Manager struct {
	store        store.Store
	cipher       *Cipher
	lifetime     time.Duration
	refreshAhead time.Duration
}

// NewManager creates a Manager with default lifetime (30 days) and refresh
// look-ahead (7 days).
func NewManager(st store.Store, cipher *Cipher) *Manager {
	return &Manager{
		store:        st,
		cipher:       cipher,
		lifetime:     defaultLifetime,
		refreshAhead: defaultRefreshAhead,
	}
}

// WithWindows overrides lifetime and refresh look-ahead.
func (m *Manager) WithWindows(lifetime, refreshAhead time.Duration) *Manager {
	if lifetime > 0 {
		m.lifetime = lifetime
	}
	if refreshAhead > 0 {
		m.refreshAhead = refreshAhead
	}
	return m
}

// Cipher exposes the manager's cipher for credential encryption elsewhere.
func (m *Manager) Cipher() *Cipher {
	return m.cipher
}

// ComputeExpiry returns the expiry for a session created now.
func (m *Manager) ComputeExpiry() time.Time {
	return time.Now().UTC().Add(m.lifetime)
}

// IsValid reports whether a session is still usable.
func (m *Manager) IsValid(expiresAt time.Time) bool {
	return time.Now().Before(expiresAt)
}

// ShouldRefresh reports whether expiry falls inside the refresh window.
// A session can be valid and still due for proactive refresh.
func (m *Manager) ShouldRefresh(expiresAt time.Time) bool {
	return time.Now().Add(m.refreshAhead).After(expiresAt)
}

// Save normalizes, filters, encrypts, and stores session cookies for an
// identity, overwriting any previous session whole.
func (m *Manager) Save(ctx context.Context, identityID string, raw []map[string]any) error {
	cookies := FilterEssential(Normalize(raw))
	if !Validate(cookies) {
		return eris.New("session: missing primary authentication cookie")
	}

	blob, err := MarshalCookies(cookies)
	if err != nil {
		return err
	}
	envelope, err := m.cipher.Encrypt(blob)
	if err != nil {
		return err
	}

	sess := &model.Session{
		IdentityID:       identityID,
		EncryptedCookies: envelope,
		ExpiresAt:        m.ComputeExpiry(),
	}
	if err := m.store.PutSession(ctx, sess); err != nil {
		return err
	}

	zap.L().Info("session: saved",
		zap.String("identity_id", identityID),
		zap.Int("cookies", len(cookies)),
		zap.Time("expires_at", sess.ExpiresAt),
	)
	return nil
}

// Load returns the decrypted cookies for an identity, or nil when there is
// no usable session. Decryption failures (rotated key, corrupted envelope)
// are logged and reported as no-session so the caller falls back to a full
// re-authentication instead of crashing.
func (m *Manager) Load(ctx context.Context, identityID string) []Cookie {
	sess, err := m.store.GetSession(ctx, identityID)
	if err != nil {
		zap.L().Warn("session: lookup failed", zap.String("identity_id", identityID), zap.Error(err))
		return nil
	}
	if sess == nil {
		return nil
	}
	if !m.IsValid(sess.ExpiresAt) {
		zap.L().Info("session: expired", zap.String("identity_id", identityID), zap.Time("expired_at", sess.ExpiresAt))
		return nil
	}

	blob, err := m.cipher.Decrypt(sess.EncryptedCookies)
	if err != nil {
		zap.L().Warn("session: decrypt failed, forcing re-authentication",
			zap.String("identity_id", identityID), zap.Error(err))
		return nil
	}
	cookies, err := UnmarshalCookies(blob)
	if err != nil {
		zap.L().Warn("session: unmarshal failed, forcing re-authentication",
			zap.String("identity_id", identityID), zap.Error(err))
		return nil
	}
	if !Validate(cookies) {
		return nil
	}

	if m.ShouldRefresh(sess.ExpiresAt) {
		zap.L().Info("session: inside refresh window",
			zap.String("identity_id", identityID), zap.Time("expires_at", sess.ExpiresAt))
	}
	return cookies
}
