// Package pipeline orchestrates the four research stages: collection,
// citation expansion, scoring and verification, and aggregation. Every
// stage is best-effort; adapter and stage failures are captured on the
// run result instead of propagating past stage boundaries.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/adapter"
	"github.com/foundry-bot/partner-research/internal/config"
	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/ratelimit"
	"github.com/foundry-bot/partner-research/internal/scorer"
	"github.com/foundry-bot/partner-research/internal/store"
	"github.com/foundry-bot/partner-research/pkg/jina"
	"github.com/foundry-bot/partner-research/pkg/wikipedia"
)

// Stage names used in the run audit trail.
const (
	stageCollect   = "1_collect"
	stageCitations = "2_citations"
	stageVerify    = "3_verify"
	stageAggregate = "4_aggregate"
)

// Adapters holds the source adapters the orchestrator fans out to. Profile
// may be nil when profile scraping is disabled; any nil fan-out adapter is
// simply skipped.
type Adapters struct {
	Profile      adapter.Adapter
	Directory    adapter.Adapter
	News         adapter.Adapter
	Social       adapter.Adapter
	Encyclopedia adapter.Adapter
}

// Orchestrator runs the research pipeline for one subject at a time.
type Orchestrator struct {
	cfg      *config.Config
	store    store.Store
	scorer   *scorer.Scorer
	counter  *ratelimit.DailyCounter
	adapters Adapters
	reader   jina.Client
	wiki     wikipedia.Client
	now      func() time.Time
}

// New creates an Orchestrator with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	sc *scorer.Scorer,
	counter *ratelimit.DailyCounter,
	adapters Adapters,
	reader jina.Client,
	wiki wikipedia.Client,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		scorer:   sc,
		counter:  counter,
		adapters: adapters,
		reader:   reader,
		wiki:     wiki,
		now:      time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (o *Orchestrator) WithNow(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run executes the full pipeline for one subject. It always returns a
// RunResult carrying whatever partial data was obtained; the error is
// non-nil only for the conditions that abort the run outright (invalid
// input, the global daily limit, an exhausted identity pool).
func (o *Orchestrator) Run(ctx context.Context, req model.ResearchRequest) (*model.RunResult, error) {
	subject := req.Subject
	if subject.RecordID == "" {
		subject.RecordID = uuid.NewString()
	}
	// The caller-supplied fields keep top priority during aggregation even
	// after collection seeds the working subject from scraped data.
	caller := subject

	result := &model.RunResult{
		Subject:   subject,
		StartedAt: o.now(),
	}
	finish := func() {
		result.Duration = o.now().Sub(result.StartedAt).Milliseconds()
	}

	if !subject.HasContext() && subject.ProfileURL == "" {
		finish()
		result.AddError(stageCollect, "", model.KindInvalidInput, "subject needs a name, organization, or profile url")
		return result, eris.New("pipeline: subject needs a name, organization, or profile url")
	}

	if !o.counter.Allow() {
		finish()
		result.AddError(stageCollect, "", model.KindRateLimited, "daily research run limit reached")
		return result, eris.New("pipeline: daily research run limit reached")
	}

	log := zap.L().With(
		zap.String("subject_id", subject.RecordID),
		zap.String("name", subject.Name),
		zap.String("organization", subject.Organization),
	)
	log.Info("pipeline: starting research run")

	runID, err := o.store.CreateRun(ctx, subject)
	if err != nil {
		finish()
		return result, eris.Wrap(err, "pipeline: create run")
	}
	result.RunID = runID

	// Drop records past their staleness window before collection so a
	// re-run never inherits expired data.
	if purged, purgeErr := o.store.DeleteExpiredRecords(ctx); purgeErr != nil {
		log.Warn("pipeline: failed to purge expired records", zap.Error(purgeErr))
	} else if purged > 0 {
		log.Info("pipeline: purged expired records", zap.Int("count", purged))
	}

	// Stage tracking helper: timing, status, and a persisted audit row.
	trackStage := func(name string, fn func() (map[string]any, error)) *model.StageResult {
		stageID, stageErr := o.store.CreateStage(ctx, runID, name)
		if stageErr != nil {
			log.Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(stageErr))
		}

		start := o.now()
		meta, fnErr := fn()
		duration := o.now().Sub(start).Milliseconds()

		sr := &model.StageResult{Name: name, Duration: duration, Metadata: meta}
		if fnErr != nil {
			sr.Status = model.StageFailed
			sr.Error = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			sr.Status = model.StageComplete
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
			)
		}

		if stageID != "" {
			if completeErr := o.store.CompleteStage(ctx, stageID, sr); completeErr != nil {
				log.Warn("pipeline: failed to complete stage", zap.String("stage", name), zap.Error(completeErr))
			}
		}
		result.Stages = append(result.Stages, *sr)
		return sr
	}

	skipStage := func(name, reason string) {
		sr := model.StageResult{Name: name, Status: model.StageSkipped, Error: reason}
		result.Stages = append(result.Stages, sr)
		if stageID, stageErr := o.store.CreateStage(ctx, runID, name); stageErr == nil {
			_ = o.store.CompleteStage(ctx, stageID, &sr)
		}
	}

	// Stage 1: collection. The two terminal conditions (exhausted pool,
	// unresolved subject) surface here.
	var collectErr error
	trackStage(stageCollect, func() (map[string]any, error) {
		meta, err := o.collect(ctx, &subject, req.Options, result)
		collectErr = err
		return meta, err
	})
	result.Subject = subject

	switch {
	case eris.Is(collectErr, errPoolExhausted):
		skipStage(stageCitations, "pool exhausted")
		skipStage(stageVerify, "pool exhausted")
		skipStage(stageAggregate, "pool exhausted")
		result.Partial = true
		finish()
		_ = o.store.CompleteRun(ctx, runID, result)
		return result, eris.Wrap(collectErr, "pipeline")
	case eris.Is(collectErr, errMissingContext):
		result.AddError(stageCollect, "", model.KindMissingContext, collectErr.Error())
		skipStage(stageCitations, "missing subject context")
		skipStage(stageVerify, "missing subject context")
		skipStage(stageAggregate, "missing subject context")
		result.Partial = true
		finish()
		_ = o.store.CompleteRun(ctx, runID, result)
		return result, nil
	case collectErr != nil:
		result.AddError(stageCollect, "", model.KindProcessError, collectErr.Error())
		result.Partial = true
	}

	// Stages 2-4: each failure is recorded and the remaining stages still
	// run against whatever data exists.
	if sr := trackStage(stageCitations, func() (map[string]any, error) {
		return o.expandCitations(ctx, subject, req.Options, result)
	}); sr.Status == model.StageFailed {
		result.AddError(stageCitations, "", model.KindFetchError, sr.Error)
		result.Partial = true
	}

	if sr := trackStage(stageVerify, func() (map[string]any, error) {
		return o.verify(ctx, subject, result)
	}); sr.Status == model.StageFailed {
		result.AddError(stageVerify, "", model.KindProcessError, sr.Error)
		result.Partial = true
	}

	if sr := trackStage(stageAggregate, func() (map[string]any, error) {
		return o.aggregate(ctx, caller, result)
	}); sr.Status == model.StageFailed {
		result.AddError(stageAggregate, "", model.KindProcessError, sr.Error)
		result.Partial = true
	}

	finish()
	if err := o.store.CompleteRun(ctx, runID, result); err != nil {
		log.Warn("pipeline: failed to complete run", zap.Error(err))
	}

	log.Info("pipeline: research run finished",
		zap.String("run_id", runID),
		zap.Int("records", len(result.Records)),
		zap.Int("facts", len(result.Facts)),
		zap.Int("errors", len(result.Errors)),
		zap.Bool("partial", result.Partial),
		zap.Int64("duration_ms", result.Duration),
	)
	return result, nil
}

// persistResult stores one adapter outcome as a keyed research record.
// Re-running a subject overwrites the same (subject, source) row.
func (o *Orchestrator) persistResult(ctx context.Context, subject model.Subject, res adapter.Result) *model.ResearchRecord {
	now := o.now()
	rec := &model.ResearchRecord{
		ID:          uuid.NewString(),
		SubjectID:   subject.RecordID,
		Source:      res.Source,
		Query:       res.Query,
		Payload:     res.Data,
		Raw:         res.Raw,
		Status:      model.RecordSuccess,
		CollectedAt: now,
		ExpiresAt:   now.Add(time.Duration(o.cfg.Research.RecordTTLDays) * 24 * time.Hour),
	}
	if !res.Success {
		rec.Status = model.RecordFailed
		rec.ErrorMessage = res.Err
	}

	if err := o.store.UpsertRecord(ctx, rec); err != nil {
		zap.L().Warn("pipeline: failed to persist record",
			zap.String("source", res.Source),
			zap.Error(err),
		)
	}
	return rec
}
