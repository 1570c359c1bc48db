package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeAdapter returns a canned result and counts calls.
type fakeAdapter struct {
	name  string
	res   adapter.Result
	calls int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Research(_ context.Context, _ model.Subject) adapter.Result {
	f.calls++
	return f.res
}

// fakeReader serves canned page content keyed by URL.
type fakeReader struct {
	pages map[string]string
}

func (f *fakeReader) Read(_ context.Context, targetURL string) (*jina.ReadResponse, error) {
	content, ok := f.pages[targetURL]
	if !ok {
		return nil, eris.Errorf("no page for %s", targetURL)
	}
	return &jina.ReadResponse{Code: 200, Data: jina.ReadData{
		Title: "page", URL: targetURL, Content: content,
	}}, nil
}

func (f *fakeReader) Search(_ context.Context, _ string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	return &jina.SearchResponse{Code: 200}, nil
}

type fakeWiki struct {
	pages map[string]*wikipedia.Page
}

func (f *fakeWiki) Summary(_ context.Context, title string) (*wikipedia.Page, error) {
	if page, ok := f.pages[title]; ok {
		return page, nil
	}
	return nil, wikipedia.ErrNotFound
}

func (f *fakeWiki) Search(_ context.Context, _ string) ([]wikipedia.SearchHit, error) {
	return nil, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Research.DailyRunLimit = 0
	cfg.Research.MinFactConfidence = 0.1
	cfg.Research.RecordTTLDays = 7
	cfg.Research.StageWorkers = 2
	cfg.Crawl.MaxCitations = 5
	cfg.Crawl.Workers = 2
	cfg.Crawl.TimeoutSecs = 5
	cfg.Crawl.BlockedDomains = []string{"facebook.com"}
	cfg.Wikipedia.UserAgent = "test-agent"
	return cfg
}

type orchestratorFixture struct {
	orch  *Orchestrator
	store store.Store
	cfg   *config.Config
}

func newFixture(t *testing.T, adapters Adapters, reader jina.Client) *orchestratorFixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cfg := testConfig()
	if reader == nil {
		reader = &fakeReader{}
	}
	orch := New(cfg, st, scorer.New(scorer.DefaultConfig()),
		ratelimit.NewDailyCounter(cfg.Research.DailyRunLimit),
		adapters, reader, &fakeWiki{})
	return &orchestratorFixture{orch: orch, store: st, cfg: cfg}
}

func profileResult(payload map[string]any) adapter.Result {
	return adapter.Result{
		Success: true,
		Source:  model.SourceProfile,
		Query:   "https://network.example/in/jblake",
		Data:    payload,
	}
}

func TestRun_HappyPath(t *testing.T) {
	profile := &fakeAdapter{name: model.SourceProfile, res: profileResult(map[string]any{
		"full_name": "Jordan Blake",
		"company":   "Acme Ventures",
		"headline":  "Partner",
		"location":  "Austin, TX",
		"links":     map[string]any{"github": "https://github.com/jblake"},
		"education": []any{"State University"},
	})}
	news := &fakeAdapter{name: model.SourceNews, res: adapter.Result{
		Success: true,
		Source:  model.SourceNews,
		Query:   "Jordan Blake Acme Ventures",
		Data:    map[string]any{"summary": "Acme Ventures closed its second fund."},
		Raw:     "Jordan Blake of Acme Ventures announced a new fund.",
	}}

	fx := newFixture(t, Adapters{Profile: profile, News: news}, nil)
	result, err := fx.orch.Run(context.Background(), model.ResearchRequest{
		Subject: model.Subject{ProfileURL: "https://network.example/in/jblake"},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Partial)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.RunID)
	assert.NotEmpty(t, result.Subject.RecordID)

	// Collection resolved the subject from the scraped payload.
	assert.Equal(t, "Jordan Blake", result.Subject.Name)
	assert.Equal(t, "Acme Ventures", result.Subject.Organization)
	assert.Equal(t, "Partner", result.Subject.Role)

	require.Len(t, result.Stages, 4)
	for _, sr := range result.Stages {
		assert.Equal(t, model.StageComplete, sr.Status, sr.Name)
	}

	// Both records landed in the store with scores attached.
	records, err := fx.store.FindRecordsBySubject(context.Background(), result.Subject.RecordID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, model.RecordSuccess, rec.Status)
		assert.Greater(t, rec.Confidence, 0.0)
	}

	require.NotEmpty(t, result.Facts)

	require.NotNil(t, result.Profile)
	assert.Equal(t, "Jordan Blake", result.Profile.Name)
	assert.Equal(t, "Acme Ventures", result.Profile.Organization)
	assert.Equal(t, "Partner", result.Profile.Role)
	assert.Equal(t, []string{"State University"}, result.Profile.Education)
	assert.Greater(t, result.Profile.DataQualityScore, 0.0)
}

func TestRun_CallerDataOutranksScraped(t *testing.T) {
	profile := &fakeAdapter{name: model.SourceProfile, res: profileResult(map[string]any{
		"full_name": "Jordan A. Blake",
		"company":   "Acme Ventures LLC",
	})}

	fx := newFixture(t, Adapters{Profile: profile}, nil)
	result, err := fx.orch.Run(context.Background(), model.ResearchRequest{
		Subject: model.Subject{
			Name:       "Jordan Blake",
			ProfileURL: "https://network.example/in/jblake",
		},
	})
	require.NoError(t, err)

	require.NotNil(t, result.Profile)
	assert.Equal(t, "Jordan Blake", result.Profile.Name, "caller-supplied name wins")
	assert.Equal(t, "Acme Ventures LLC", result.Profile.Organization, "scraped value fills the gap")
}

func TestRun_DirectoryFallback(t *testing.T) {
	profile := &fakeAdapter{name: model.SourceProfile, res: adapter.Failure(
		model.SourceProfile, "https://network.example/in/jblake",
		model.KindFetchError, "profile page unreachable",
	)}
	directory := &fakeAdapter{name: model.SourceDirectory, res: adapter.Result{
		Success: true,
		Source:  model.SourceDirectory,
		Data:    map[string]any{"name": "Jordan Blake", "organization": "Acme Ventures"},
	}}

	fx := newFixture(t, Adapters{Profile: profile, Directory: directory}, nil)
	result, err := fx.orch.Run(context.Background(), model.ResearchRequest{
		Subject: model.Subject{ProfileURL: "https://network.example/in/jblake"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, directory.calls)
	assert.Equal(t, "Jordan Blake", result.Subject.Name)

	// The profile failure is surfaced, not swallowed.
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.KindFetchError, result.Errors[0].Kind)
	assert.Equal(t, model.SourceProfile, result.Errors[0].Source)
}

func TestRun_InvalidInput(t *testing.T) {
	fx := newFixture(t, Adapters{}, nil)
	result, err := fx.orch.Run(context.Background(), model.ResearchRequest{})
	require.Error(t, err)
	require.NotNil(t, result, "aborted runs still return a result")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.KindInvalidInput, result.Errors[0].Kind)
	assert.Empty(t, result.Stages)
}

func TestRun_DailyLimitAbortsSecondRun(t *testing.T) {
	profile := &fakeAdapter{name: model.SourceProfile, res: profileResult(map[string]any{
		"full_name": "Jordan Blake",
	})}
	fx := newFixture(t, Adapters{Profile: profile}, nil)
	fx.orch.counter = ratelimit.NewDailyCounter(1)

	_, err := fx.orch.Run(context.Background(), model.ResearchRequest{
		Subject: model.Subject{ProfileURL: "https://network.example/in/jblake"},
	})
	require.NoError(t, err)

	result, err := fx.orch.Run(context.Background(), model.ResearchRequest{
		Subject: model.Subject{ProfileURL: "https://network.example/in/jblake"},
	})
	require.Error(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, model.KindRateLimited, result.Errors[0].Kind)
	assert.Empty(t, result.Stages, "no stage runs once the global limit is hit")
}

func TestRun_PoolExhaustedAbortsRun(t *testing.T) {
	profile := &fakeAdapter{name: model.SourceProfile, res: adapter.Failure(
		model.SourceProfile, "https://network.example/in/jblake",
		model.KindNoneAvailable, "no identities available: total=2 banned=1 cooling_down=1",
	)}

	fx := newFixture(t, Adapters{Profile: profile}, nil)
	result, err := fx.orch.Run(context.Background(), model.ResearchRequest{
		Subject: model.Subject{Name: "Jordan Blake", ProfileURL: "https://network.example/in/jblake"},
	})
	require.Error(t, err)
	assert.True(t, result.Partial)

	require.Len(t, result.Stages, 4)
	assert.Equal(t, model.StageFailed, result.Stages[0].Status)
	for _, sr := range result.Stages[1:] {
		assert.Equal(t, model.StageSkipped, sr.Status, sr.Name)
	}

	require.NotEmpty(t, result.Errors)
	assert.Equal(t, model.KindNoneAvailable, result.Errors[0].Kind)
}

func TestRun_MissingContextStopsAfterCollection(t *testing.T) {
	profile := &fakeAdapter{name: model.SourceProfile, res: adapter.Failure(
		model.SourceProfile, "https://network.example/in/jblake",
		model.KindFetchError, "profile page unreachable",
	)}

	fx := newFixture(t, Adapters{Profile: profile}, nil)
	result, err := fx.orch.Run(context.Background(), model.ResearchRequest{
		Subject: model.Subject{ProfileURL: "https://network.example/in/jblake"},
	})
	require.NoError(t, err, "an unresolved subject is a partial outcome, not a run failure")

	assert.True(t, result.Partial)
	require.Len(t, result.Stages, 4)
	assert.Equal(t, model.StageFailed, result.Stages[0].Status)
	for _, sr := range result.Stages[1:] {
		assert.Equal(t, model.StageSkipped, sr.Status, sr.Name)
	}

	var kinds []model.ErrorKind
	for _, e := range result.Errors {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, model.KindMissingContext)
}

func TestRun_CitationExpansion(t *testing.T) {
	profile := &fakeAdapter{name: model.SourceProfile, res: adapter.Result{
		Success: true,
		Source:  model.SourceProfile,
		Data: map[string]any{
			"full_name": "Jordan Blake",
			"company":   "Acme Ventures",
			"citations": []any{"https://press.example.com/acme-fund"},
		},
	}}
	reader := &fakeReader{pages: map[string]string{
		"https://press.example.com/acme-fund": "Acme Ventures raised $5 million for its seed fund.",
	}}

	fx := newFixture(t, Adapters{Profile: profile}, reader)
	result, err := fx.orch.Run(context.Background(), model.ResearchRequest{
		Subject: model.Subject{ProfileURL: "https://network.example/in/jblake"},
	})
	require.NoError(t, err)

	citationSource := model.CitationSource("press.example.com")
	var citation *model.ResearchRecord
	for i := range result.Records {
		if result.Records[i].Source == citationSource {
			citation = &result.Records[i]
		}
	}
	require.NotNil(t, citation, "citation page becomes its own record")
	assert.Equal(t, model.RecordSuccess, citation.Status)
	assert.Contains(t, citation.Raw, "$5 million")

	var funding []model.VerifiedFact
	for _, vf := range result.Facts {
		if vf.Fact.Type == model.FactFunding {
			funding = append(funding, vf)
		}
	}
	assert.NotEmpty(t, funding, "funding amount extracted from the crawled page")
}

func TestRun_ExpiredRecordsExcluded(t *testing.T) {
	profile := &fakeAdapter{name: model.SourceProfile, res: profileResult(map[string]any{
		"full_name": "Jordan Blake",
		"company":   "Acme Ventures",
	})}
	fx := newFixture(t, Adapters{Profile: profile}, nil)
	ctx := context.Background()

	subjectID := "subject-stale"
	stale := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, fx.store.UpsertRecord(ctx, &model.ResearchRecord{
		ID:          "rec-stale",
		SubjectID:   subjectID,
		Source:      model.SourceNews,
		Query:       "Jordan Blake news",
		Payload:     map[string]any{"summary": "Jordan Blake left Oldco Capital."},
		Status:      model.RecordSuccess,
		CollectedAt: stale.Add(-time.Hour),
		ExpiresAt:   stale,
	}))

	result, err := fx.orch.Run(ctx, model.ResearchRequest{
		Subject: model.Subject{RecordID: subjectID, ProfileURL: "https://network.example/in/jblake"},
	})
	require.NoError(t, err)

	for _, rec := range result.Records {
		assert.NotEqual(t, "rec-stale", rec.ID, "record past its staleness window must not feed verification")
	}
	require.NotNil(t, result.Profile)
	assert.NotContains(t, result.Profile.SourcesUsed, model.SourceNews)

	// The run-start purge removes the row entirely.
	records, err := fx.store.FindRecordsBySubject(ctx, subjectID)
	require.NoError(t, err)
	for _, rec := range records {
		assert.NotEqual(t, "rec-stale", rec.ID)
	}
}

func TestHarvestCitations(t *testing.T) {
	fx := newFixture(t, Adapters{}, nil)

	records := []model.ResearchRecord{
		{
			Source: model.SourceProfile,
			Status: model.RecordSuccess,
			Payload: map[string]any{"citations": []any{
				"https://example.com/a.",
				"ftp://example.com/not-http",
				"https://facebook.com/blocked",
				"https://sub.facebook.com/also-blocked",
				"https://example.com/a",
			}},
			Raw: "see https://news.example.com/story, for details",
		},
		{
			Source:  model.SourceNews,
			Status:  model.RecordFailed,
			Payload: map[string]any{"citations": []any{"https://example.com/from-failed"}},
		},
		{
			Source: model.CitationSource("example.com"),
			Status: model.RecordSuccess,
			Raw:    "https://example.com/from-citation",
		},
	}

	urls := fx.orch.harvestCitations(records)
	assert.Equal(t, []string{
		"https://example.com/a",
		"https://news.example.com/story",
	}, urls)
}

func TestDomainAllowed(t *testing.T) {
	fx := newFixture(t, Adapters{}, nil)
	fx.cfg.Crawl.BlockedDomains = []string{"facebook.com"}

	assert.True(t, fx.orch.domainAllowed("example.com"))
	assert.False(t, fx.orch.domainAllowed("facebook.com"))
	assert.False(t, fx.orch.domainAllowed("m.facebook.com"))
	assert.False(t, fx.orch.domainAllowed("M.Facebook.com"))

	fx.cfg.Crawl.AllowedDomains = []string{"example.com"}
	assert.True(t, fx.orch.domainAllowed("example.com"))
	assert.True(t, fx.orch.domainAllowed("www.example.com"))
	assert.False(t, fx.orch.domainAllowed("other.com"))
}

func TestSeedSubject(t *testing.T) {
	subject := &model.Subject{Name: "Jordan Blake"}
	seedSubject(subject, map[string]any{
		"name":     "Someone Else",
		"company":  "Acme Ventures",
		"headline": "Partner",
	})

	assert.Equal(t, "Jordan Blake", subject.Name, "resolved fields are never overwritten")
	assert.Equal(t, "Acme Ventures", subject.Organization)
	assert.Equal(t, "Partner", subject.Role)
}

func TestAggregate_SourcePriority(t *testing.T) {
	fx := newFixture(t, Adapters{}, nil)
	ctx := context.Background()

	result := &model.RunResult{Records: []model.ResearchRecord{
		{
			SubjectID: "subj-1", Source: model.SourceSocial, Status: model.RecordSuccess,
			Confidence: 0.4,
			Payload:    map[string]any{"name": "jblake", "bio": "builder of things"},
		},
		{
			SubjectID: "subj-1", Source: model.SourceProfile, Status: model.RecordSuccess,
			Confidence: 0.8,
			Payload:    map[string]any{"full_name": "Jordan Blake", "company": "Acme Ventures"},
		},
		{
			SubjectID: "subj-1", Source: model.SourceEncyclopedia, Status: model.RecordSuccess,
			Confidence: 0.6,
			Payload:    map[string]any{"extract": "Jordan Blake is a venture investor."},
		},
	}}

	meta, err := fx.orch.aggregate(ctx, model.Subject{RecordID: "subj-1"}, result)
	require.NoError(t, err)
	require.NotNil(t, result.Profile)

	// Profile beats social for the name; encyclopedia beats social for the bio.
	assert.Equal(t, "Jordan Blake", result.Profile.Name)
	assert.Equal(t, "Jordan Blake is a venture investor.", result.Profile.Bio)
	assert.Equal(t, "Acme Ventures", result.Profile.Organization)

	assert.InDelta(t, 0.6, result.Profile.DataQualityScore, 1e-9)
	assert.Equal(t, []string{model.SourceEncyclopedia, model.SourceProfile}, result.Profile.SourcesUsed)

	// The profile is durably stored, not just returned.
	stored, err := fx.store.GetProfile(ctx, "subj-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Jordan Blake", stored.Name)

	assert.Equal(t, 2, meta["sources_used"])
}
