// Package pool manages the set of reusable scraping identities: selection,
// usage accounting, and failure-driven state transitions.
//
// State machine: active ⇄ cooldown/verification_required (time-bounded,
// auto-recovering via the selection predicate) → banned (terminal, cleared
// only by an explicit administrative reset).
package pool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/config"
	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/session"
	"github.com/foundry-bot/partner-research/internal/store"
)

const maxErrorMessageLen = 500

// NoneAvailableError reports pool exhaustion with a per-cause breakdown
// for operational diagnosis.
type NoneAvailableError struct {
	Total             int
	InCooldown        int
	OverQuota         int
	Banned            int
	NeedsVerification int
}

func (e *NoneAvailableError) Error() string {
	return fmt.Sprintf(
		"pool: no identity available (%d total: %d in cooldown, %d over daily quota, %d banned, %d need verification)",
		e.Total, e.InCooldown, e.OverQuota, e.Banned, e.NeedsVerification,
	)
}

// Pool selects and health-manages scraping identities on top of the store.
type Pool struct {
	store  store.Store
	cipher *session.Cipher
	cfg    config.PoolConfig
	now    func() time.Time // injectable for testing
}

// New creates a Pool.
func New(st store.Store, cipher *session.Cipher, cfg config.PoolConfig) *Pool {
	return &Pool{store: st, cipher: cipher, cfg: cfg, now: time.Now}
}

// WithNow fixes the pool's clock for testing.
func (p *Pool) WithNow(now func() time.Time) *Pool {
	p.now = now
	return p
}

// SelectAvailable picks the least-recently-used eligible identity and
// stamps its lastUsedAt. Eligibility: active status, cooldown elapsed,
// under daily quota, and outside the minimum inter-selection gap. The
// stamp narrows, but does not close, the window in which two concurrent
// runs can pick the same identity; that race is an accepted soft
// constraint.
func (p *Pool) SelectAvailable(ctx context.Context) (*model.Identity, error) {
	if err := p.ResetDailyCounters(ctx); err != nil {
		return nil, err
	}

	identities, err := p.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	gap := time.Duration(p.cfg.MinSelectionGapMinutes) * time.Minute

	var eligible []model.Identity
	breakdown := &NoneAvailableError{Total: len(identities)}
	for _, id := range identities {
		switch id.Status {
		case model.IdentityBanned:
			breakdown.Banned++
			continue
		case model.IdentityVerificationRequired:
			if !recoverable(&id, now) {
				breakdown.NeedsVerification++
				continue
			}
			// Verification window elapsed; the checkpoint cleared on
			// its own failure cooldown.
		case model.IdentityCooldown:
			if id.InCooldown(now) {
				breakdown.InCooldown++
				continue
			}
			// Cooldown elapsed; treat as active again.
		case model.IdentityActive:
			if id.InCooldown(now) {
				breakdown.InCooldown++
				continue
			}
		default:
			continue
		}
		if id.ScrapesToday >= p.cfg.DailyLimit {
			breakdown.OverQuota++
			continue
		}
		if id.LastUsedAt != nil && now.Sub(*id.LastUsedAt) < gap {
			breakdown.InCooldown++
			continue
		}
		eligible = append(eligible, id)
	}

	if len(eligible) == 0 {
		return nil, breakdown
	}

	// Least-recently-used first, never-used identities ahead of all.
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i].LastUsedAt, eligible[j].LastUsedAt
		if a == nil {
			return b != nil
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})

	selected := eligible[0]
	if selected.Status != model.IdentityActive {
		selected.Status = model.IdentityActive
		selected.CooldownUntil = nil
	}
	selected.LastUsedAt = &now
	if err := p.store.UpdateIdentity(ctx, &selected); err != nil {
		return nil, err
	}

	zap.L().Debug("pool: selected identity",
		zap.String("identity_id", selected.ID),
		zap.String("label", selected.Label),
		zap.Int("scrapes_today", selected.ScrapesToday),
	)
	return &selected, nil
}

// RecordSuccess updates usage counters after a successful scrape.
func (p *Pool) RecordSuccess(ctx context.Context, id string) error {
	identity, err := p.store.GetIdentity(ctx, id)
	if err != nil {
		return err
	}

	now := p.now().UTC()
	identity.TotalScrapes++
	identity.ScrapesToday++
	identity.FailureCount = 0
	identity.LastErrorMessage = ""
	identity.LastUsedAt = &now

	return p.store.UpdateIdentity(ctx, identity)
}

// RecordFailure applies the escalation policy for a failed scrape. Exactly
// one branch fires, evaluated in order: rate limiting cools the identity
// down without a status change; the other identity-specific kinds require
// verification and cool it down; anything else counts toward the ban
// threshold.
func (p *Pool) RecordFailure(ctx context.Context, id string, errMsg string, kind model.ErrorKind) error {
	identity, err := p.store.GetIdentity(ctx, id)
	if err != nil {
		return err
	}

	now := p.now().UTC()
	identity.FailureCount++
	identity.LastErrorMessage = truncate(errMsg, maxErrorMessageLen)
	identity.LastUsedAt = &now

	cooldown := now.Add(time.Duration(p.cfg.CooldownHours) * time.Hour)

	switch {
	case kind == model.KindRateLimited:
		identity.CooldownUntil = &cooldown
		zap.L().Warn("pool: identity rate limited, cooling down",
			zap.String("identity_id", id),
			zap.Time("until", cooldown),
		)
	case kind.IdentitySpecific():
		identity.Status = model.IdentityVerificationRequired
		identity.CooldownUntil = &cooldown
		zap.L().Warn("pool: identity needs verification",
			zap.String("identity_id", id),
			zap.String("kind", string(kind)),
		)
	case identity.FailureCount >= p.cfg.MaxFailuresBeforeBan:
		identity.Status = model.IdentityBanned
		zap.L().Error("pool: identity banned after repeated failures",
			zap.String("identity_id", id),
			zap.Int("failures", identity.FailureCount),
		)
	}

	return p.store.UpdateIdentity(ctx, identity)
}

// ResetDailyCounters zeroes scrapesToday for every identity whose last
// reset is missing or older than 24 hours. Runs as a precondition of every
// selection so no external scheduler is required.
func (p *Pool) ResetDailyCounters(ctx context.Context) error {
	identities, err := p.store.ListIdentities(ctx)
	if err != nil {
		return err
	}

	now := p.now().UTC()
	for i := range identities {
		id := &identities[i]
		if id.ScrapesToday == 0 {
			continue
		}
		if id.ScrapesDayReset != nil && now.Sub(*id.ScrapesDayReset) < 24*time.Hour {
			continue
		}
		id.ScrapesToday = 0
		id.ScrapesDayReset = &now
		if err := p.store.UpdateIdentity(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ResetIdentity is the administrative override: clears failures, cooldown,
// and error state, and reactivates the identity (including banned ones).
func (p *Pool) ResetIdentity(ctx context.Context, id string) error {
	identity, err := p.store.GetIdentity(ctx, id)
	if err != nil {
		return err
	}

	identity.Status = model.IdentityActive
	identity.FailureCount = 0
	identity.CooldownUntil = nil
	identity.LastErrorMessage = ""

	if err := p.store.UpdateIdentity(ctx, identity); err != nil {
		return err
	}
	zap.L().Info("pool: identity reset", zap.String("identity_id", id))
	return nil
}

// SetStatus changes an identity's status directly.
func (p *Pool) SetStatus(ctx context.Context, id string, status model.IdentityStatus) error {
	identity, err := p.store.GetIdentity(ctx, id)
	if err != nil {
		return err
	}
	identity.Status = status
	return p.store.UpdateIdentity(ctx, identity)
}

// Add encrypts the supplied credentials and creates a new active identity.
func (p *Pool) Add(ctx context.Context, label, email, password, recoveryEmail, recoveryPassword string) (*model.Identity, error) {
	if email == "" || password == "" {
		return nil, eris.New("pool: email and password are required")
	}

	encEmail, err := p.cipher.Encrypt(email)
	if err != nil {
		return nil, err
	}
	encPassword, err := p.cipher.Encrypt(password)
	if err != nil {
		return nil, err
	}

	identity := &model.Identity{
		Label:             label,
		EncryptedEmail:    encEmail,
		EncryptedPassword: encPassword,
		Status:            model.IdentityActive,
	}
	if recoveryEmail != "" {
		if identity.EncryptedRecoveryEmail, err = p.cipher.Encrypt(recoveryEmail); err != nil {
			return nil, err
		}
	}
	if recoveryPassword != "" {
		if identity.EncryptedRecoveryPassword, err = p.cipher.Encrypt(recoveryPassword); err != nil {
			return nil, err
		}
	}

	if err := p.store.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}
	zap.L().Info("pool: identity added", zap.String("identity_id", identity.ID), zap.String("label", label))
	return identity, nil
}

// Remove hard-deletes an identity and its session.
func (p *Pool) Remove(ctx context.Context, id string) error {
	if err := p.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	return p.store.DeleteIdentity(ctx, id)
}

// Credentials decrypts an identity's primary credential pair for use by
// the profile-scrape adapter.
func (p *Pool) Credentials(identity *model.Identity) (email, password string, err error) {
	email, err = p.cipher.Decrypt(identity.EncryptedEmail)
	if err != nil {
		return "", "", eris.Wrap(err, "pool: decrypt email")
	}
	password, err = p.cipher.Decrypt(identity.EncryptedPassword)
	if err != nil {
		return "", "", eris.Wrap(err, "pool: decrypt password")
	}
	return email, password, nil
}

// recoverable reports whether a non-active identity's time-bounded state
// has elapsed so selection may treat it as active again. An identity in
// verification_required without a stamped cooldown was parked by an
// operator and stays gated until an explicit reset.
func recoverable(id *model.Identity, now time.Time) bool {
	switch id.Status {
	case model.IdentityCooldown:
		return !id.InCooldown(now)
	case model.IdentityVerificationRequired:
		return id.CooldownUntil != nil && !id.InCooldown(now)
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
