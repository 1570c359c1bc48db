package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Crypto    CryptoConfig    `yaml:"crypto" mapstructure:"crypto"`
	Pool      PoolConfig      `yaml:"pool" mapstructure:"pool"`
	Research  ResearchConfig  `yaml:"research" mapstructure:"research"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Wikipedia WikipediaConfig `yaml:"wikipedia" mapstructure:"wikipedia"`
	Profile   ProfileConfig   `yaml:"profile" mapstructure:"profile"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CryptoConfig holds the symmetric key for credential and session
// encryption. The key must be 64 hex characters (32 bytes decoded).
type CryptoConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// PoolConfig configures credential pool health management.
type PoolConfig struct {
	DailyLimit              int `yaml:"daily_limit" mapstructure:"daily_limit"`
	CooldownHours           int `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
	MaxFailuresBeforeBan    int `yaml:"max_failures_before_ban" mapstructure:"max_failures_before_ban"`
	MinSelectionGapMinutes  int `yaml:"min_selection_gap_minutes" mapstructure:"min_selection_gap_minutes"`
	SessionLifetimeDays     int `yaml:"session_lifetime_days" mapstructure:"session_lifetime_days"`
	SessionRefreshAheadDays int `yaml:"session_refresh_ahead_days" mapstructure:"session_refresh_ahead_days"`
}

// ResearchConfig configures the orchestrator.
type ResearchConfig struct {
	DailyRunLimit     int     `yaml:"daily_run_limit" mapstructure:"daily_run_limit"`
	MinFactConfidence float64 `yaml:"min_fact_confidence" mapstructure:"min_fact_confidence"`
	RecordTTLDays     int     `yaml:"record_ttl_days" mapstructure:"record_ttl_days"`
	StageWorkers      int     `yaml:"stage_workers" mapstructure:"stage_workers"`
	TrustTablePath    string  `yaml:"trust_table_path" mapstructure:"trust_table_path"`
}

// CrawlConfig configures citation expansion.
type CrawlConfig struct {
	MaxCitations     int      `yaml:"max_citations" mapstructure:"max_citations"`
	Workers          int      `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BatchDelayMillis int      `yaml:"batch_delay_millis" mapstructure:"batch_delay_millis"`
	BlockedDomains   []string `yaml:"blocked_domains" mapstructure:"blocked_domains"`
	AllowedDomains   []string `yaml:"allowed_domains" mapstructure:"allowed_domains"`
}

// JinaConfig holds Jina AI Reader/Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// GoogleConfig holds Google Custom Search settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	CX      string `yaml:"cx" mapstructure:"cx"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// WikipediaConfig holds Wikipedia API settings.
type WikipediaConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ProfileConfig configures the profile-scrape child process.
type ProfileConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Python      string `yaml:"python" mapstructure:"python"`
	ScriptPath  string `yaml:"script_path" mapstructure:"script_path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "research.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("pool.daily_limit", 20)
	v.SetDefault("pool.cooldown_hours", 6)
	v.SetDefault("pool.max_failures_before_ban", 3)
	v.SetDefault("pool.min_selection_gap_minutes", 10)
	v.SetDefault("pool.session_lifetime_days", 30)
	v.SetDefault("pool.session_refresh_ahead_days", 7)
	v.SetDefault("research.daily_run_limit", 50)
	v.SetDefault("research.min_fact_confidence", 0.4)
	v.SetDefault("research.record_ttl_days", 30)
	v.SetDefault("research.stage_workers", 3)
	v.SetDefault("crawl.max_citations", 5)
	v.SetDefault("crawl.workers", 3)
	v.SetDefault("crawl.timeout_secs", 20)
	v.SetDefault("crawl.batch_delay_millis", 500)
	v.SetDefault("crawl.blocked_domains", []string{
		"facebook.com", "instagram.com", "tiktok.com",
		"bit.ly", "t.co", "lnkd.in", "goo.gl",
	})
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("google.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("wikipedia.base_url", "https://en.wikipedia.org")
	v.SetDefault("wikipedia.user_agent", "PartnerResearch/1.0 (contact@foundry.com)")
	v.SetDefault("profile.enabled", true)
	v.SetDefault("profile.python", "python3")
	v.SetDefault("profile.script_path", "scripts/scrape_profile.py")
	v.SetDefault("profile.timeout_secs", 150)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
