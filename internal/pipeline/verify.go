package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/model"
)

// verify runs Stage 3: score every successful record, extract and
// de-duplicate facts, cross-reference them against all other sources, and
// keep only facts above the confidence floor.
func (o *Orchestrator) verify(ctx context.Context, subject model.Subject, result *model.RunResult) (map[string]any, error) {
	records, err := o.store.FindRecordsBySubject(ctx, subject.RecordID)
	if err != nil {
		return nil, eris.Wrap(err, "verify: load records")
	}

	// Expired records are purged at run start, but the purge runs on the
	// database clock; enforce the staleness window here too.
	now := o.now()
	fresh := records[:0]
	for i := range records {
		if records[i].Fresh(now) {
			fresh = append(fresh, records[i])
		}
	}
	records = fresh

	var facts []model.Fact
	scored := 0
	for i := range records {
		rec := &records[i]
		if rec.Status != model.RecordSuccess {
			continue
		}

		rec.Confidence = o.scorer.Score(rec)
		scored++
		if upsertErr := o.store.UpsertRecord(ctx, rec); upsertErr != nil {
			zap.L().Warn("verify: failed to persist score",
				zap.String("source", rec.Source),
				zap.Error(upsertErr),
			)
		}

		facts = append(facts, o.scorer.ExtractFacts(rec)...)
	}

	deduped := o.scorer.Deduplicate(facts)
	merged := make([]model.Fact, len(deduped))
	for i, df := range deduped {
		merged[i] = df.Fact
	}

	verified := o.scorer.CrossReference(merged, records)

	kept := verified[:0]
	for _, vf := range verified {
		if vf.Confidence >= o.cfg.Research.MinFactConfidence {
			kept = append(kept, vf)
		}
	}
	result.Facts = kept
	result.Records = records

	return map[string]any{
		"records_scored": scored,
		"facts_raw":      len(facts),
		"facts_kept":     len(kept),
	}, nil
}
