package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/adapter"
	"github.com/foundry-bot/partner-research/internal/pipeline"
	"github.com/foundry-bot/partner-research/internal/pool"
	"github.com/foundry-bot/partner-research/internal/ratelimit"
	"github.com/foundry-bot/partner-research/internal/scorer"
	"github.com/foundry-bot/partner-research/internal/session"
	"github.com/foundry-bot/partner-research/internal/store"
	"github.com/foundry-bot/partner-research/pkg/google"
	"github.com/foundry-bot/partner-research/pkg/jina"
	"github.com/foundry-bot/partner-research/pkg/wikipedia"
)

// researchEnv holds the initialized store, pool, and orchestrator shared
// by the run and serve commands.
type researchEnv struct {
	Store        store.Store
	Pool         *pool.Pool
	Sessions     *session.Manager
	Orchestrator *pipeline.Orchestrator
}

// Close releases resources held by the environment.
func (re *researchEnv) Close() {
	if re.Store != nil {
		_ = re.Store.Close()
	}
}

// openStore opens the configured store backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "research.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func sessionLifetime(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// initResearch sets up the store, credential pool, clients, and the
// orchestrator. Callers should defer env.Close().
func initResearch(ctx context.Context) (*researchEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	cipher, err := session.NewCipher(cfg.Crypto.Key)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init cipher (set RESEARCH_CRYPTO_KEY to 64 hex chars)")
	}

	sessions := session.NewManager(st, cipher).WithWindows(
		sessionLifetime(cfg.Pool.SessionLifetimeDays),
		sessionLifetime(cfg.Pool.SessionRefreshAheadDays),
	)
	identityPool := pool.New(st, cipher, cfg.Pool)

	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)
	wikiClient := wikipedia.NewClient(cfg.Wikipedia.UserAgent, wikipedia.WithBaseURL(cfg.Wikipedia.BaseURL))

	adapters := pipeline.Adapters{
		News:         adapter.NewNewsAdapter(jinaClient),
		Social:       adapter.NewSocialAdapter(jinaClient),
		Encyclopedia: adapter.NewEncyclopediaAdapter(wikiClient),
	}

	if cfg.Profile.Enabled {
		adapters.Profile = adapter.NewProfileAdapter(cfg.Profile, identityPool, sessions)
	} else {
		zap.L().Info("profile scraping disabled")
	}

	// The directory fallback needs a configured search engine.
	if cfg.Google.Key != "" && cfg.Google.CX != "" {
		googleClient := google.NewClient(cfg.Google.Key, cfg.Google.CX, google.WithBaseURL(cfg.Google.BaseURL))
		adapters.Directory = adapter.NewDirectoryAdapter(googleClient)
	} else {
		zap.L().Debug("RESEARCH_GOOGLE_KEY/CX not set, directory fallback disabled")
	}

	scorerCfg := scorer.DefaultConfig()
	if cfg.Research.TrustTablePath != "" {
		if err := scorerCfg.LoadTrustTable(cfg.Research.TrustTablePath); err != nil {
			zap.L().Warn("failed to load trust table, using defaults", zap.Error(err))
		}
	}

	counter := ratelimit.NewDailyCounter(cfg.Research.DailyRunLimit)
	orch := pipeline.New(cfg, st, scorer.New(scorerCfg), counter, adapters, jinaClient, wikiClient)

	return &researchEnv{
		Store:        st,
		Pool:         identityPool,
		Sessions:     sessions,
		Orchestrator: orch,
	}, nil
}
