package pool

import (
	"context"
	"time"

	"github.com/foundry-bot/partner-research/internal/model"
)

// IdentityHealth is one row of the pool health summary.
type IdentityHealth struct {
	ID            string                `json:"id"`
	Label         string                `json:"label"`
	Status        model.IdentityStatus  `json:"status"`
	ScrapesToday  int                   `json:"scrapes_today"`
	TotalScrapes  int                   `json:"total_scrapes"`
	FailureCount  int                   `json:"failure_count"`
	Eligible      bool                  `json:"eligible"`
	CooldownUntil *time.Time            `json:"cooldown_until,omitempty"`
	LastUsedAt    *time.Time            `json:"last_used_at,omitempty"`
	LastError     string                `json:"last_error,omitempty"`
}

// HealthSummary returns a per-identity view of the pool's state for the
// administrative list operation.
func (p *Pool) HealthSummary(ctx context.Context) ([]IdentityHealth, error) {
	identities, err := p.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	gap := time.Duration(p.cfg.MinSelectionGapMinutes) * time.Minute

	rows := make([]IdentityHealth, 0, len(identities))
	for _, id := range identities {
		statusOK := (id.Status == model.IdentityActive && !id.InCooldown(now)) ||
			recoverable(&id, now)
		eligible := statusOK &&
			id.ScrapesToday < p.cfg.DailyLimit &&
			(id.LastUsedAt == nil || now.Sub(*id.LastUsedAt) >= gap)

		rows = append(rows, IdentityHealth{
			ID:            id.ID,
			Label:         id.Label,
			Status:        id.Status,
			ScrapesToday:  id.ScrapesToday,
			TotalScrapes:  id.TotalScrapes,
			FailureCount:  id.FailureCount,
			Eligible:      eligible,
			CooldownUntil: id.CooldownUntil,
			LastUsedAt:    id.LastUsedAt,
			LastError:     id.LastErrorMessage,
		})
	}
	return rows, nil
}
