package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/foundry-bot/partner-research/internal/adapter"
	"github.com/foundry-bot/partner-research/internal/model"
)

// Sentinel conditions that end a run during collection.
var (
	errPoolExhausted  = eris.New("identity pool exhausted")
	errMissingContext = eris.New("no resolved name or organization after collection")
)

// collect runs Stage 1: the profile scrape (with directory fallback), then
// a bounded parallel fan-out over the remaining adapters. The subject is
// updated in place with whatever name, organization, and role the primary
// sources resolved.
func (o *Orchestrator) collect(ctx context.Context, subject *model.Subject, opts model.ResearchOptions, result *model.RunResult) (map[string]any, error) {
	var succeeded, failed int

	record := func(res adapter.Result) *model.ResearchRecord {
		rec := o.persistResult(ctx, *subject, res)
		result.Records = append(result.Records, *rec)
		if res.Success {
			succeeded++
		} else {
			failed++
			result.AddError(stageCollect, res.Source, res.ErrorKind, res.Err)
		}
		return rec
	}

	// Primary: scrape the canonical profile. An exhausted pool is the one
	// adapter failure that ends the run, so operators see the breakdown
	// instead of a silently thin result.
	profileOK := false
	if o.adapters.Profile != nil && !opts.SkipProfile && subject.ProfileURL != "" {
		res := o.adapters.Profile.Research(ctx, *subject)
		if res.ErrorKind == model.KindNoneAvailable {
			result.AddError(stageCollect, res.Source, res.ErrorKind, res.Err)
			return nil, eris.Wrap(errPoolExhausted, res.Err)
		}
		record(res)
		if res.Success {
			profileOK = true
			seedSubject(subject, res.Data)
		}
	}

	// Fallback: a directory search resolves the same subject when the
	// direct scrape failed or was skipped.
	if !profileOK && o.adapters.Directory != nil && !opts.SkipDirectory {
		res := o.adapters.Directory.Research(ctx, *subject)
		record(res)
		if res.Success {
			seedSubject(subject, res.Data)
		}
	}

	// The search-based adapters need something to search for.
	if !subject.HasContext() {
		return map[string]any{"succeeded": succeeded, "failed": failed}, errMissingContext
	}

	var fanout []adapter.Adapter
	if o.adapters.News != nil && !opts.SkipNews {
		fanout = append(fanout, o.adapters.News)
	}
	if o.adapters.Social != nil && !opts.SkipSocial {
		fanout = append(fanout, o.adapters.Social)
	}
	if o.adapters.Encyclopedia != nil && !opts.SkipEncyclopedia {
		fanout = append(fanout, o.adapters.Encyclopedia)
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Research.StageWorkers)

	for _, a := range fanout {
		g.Go(func() error {
			res := a.Research(gCtx, *subject)
			mu.Lock()
			record(res)
			mu.Unlock()
			// A failed adapter never cancels its siblings.
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Debug("collect: fan-out settled",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)
	return map[string]any{"succeeded": succeeded, "failed": failed}, nil
}

// seedSubject fills unresolved subject fields from an adapter payload so
// later adapters search with the best-known name and organization.
func seedSubject(subject *model.Subject, data map[string]any) {
	if subject.Name == "" {
		subject.Name = stringField(data, "name", "full_name")
	}
	if subject.Organization == "" {
		subject.Organization = stringField(data, "organization", "company", "company_name")
	}
	if subject.Role == "" {
		subject.Role = stringField(data, "role", "title", "headline")
	}
	if subject.ProfileURL == "" {
		subject.ProfileURL = stringField(data, "profile_url")
	}
}

func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
