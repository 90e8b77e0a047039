package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"

	"github.com/bikeshrana/awfes/pkg/types"
)

// Config holds all application configuration for one AWFES run.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Database    DatabaseConfig    `mapstructure:"database"`
	EpochSearch EpochSearchConfig `mapstructure:"epoch_search"`
	FoldPolicy  FoldPolicyConfig  `mapstructure:"fold_policy"`
	Market      MarketConfig      `mapstructure:"market_convention"`
	View        ViewConfig        `mapstructure:"view"`
	Smoother    SmootherConfig    `mapstructure:"smoother"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds the read-only HTTP API's server configuration.
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
}

// AuthConfig holds JWT authentication configuration for the API's
// run-trigger and history endpoints. There is exactly one operator
// identity; this surface protects a run-control endpoint, not a
// multi-tenant user system.
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	OperatorUsername string        `mapstructure:"operator_username"`
	OperatorPassword string        `mapstructure:"operator_password"`
}

// DatabaseConfig holds the run store's Postgres connection settings.
type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Database    string        `mapstructure:"database"`
	MaxConns    int           `mapstructure:"max_conns"`
	MinConns    int           `mapstructure:"min_conns"`
	MaxConnLife time.Duration `mapstructure:"max_conn_life"`
}

// EpochSearchConfig bounds the epoch candidate sweep, declares how many
// candidates to draw from that range, and caps worker concurrency.
type EpochSearchConfig struct {
	MinEpochs   int   `mapstructure:"min_epochs"`
	MaxEpochs   int   `mapstructure:"max_epochs"`
	Granularity int   `mapstructure:"granularity"`
	MaxWorkers  int   `mapstructure:"max_workers"`
	RandomSeed  int64 `mapstructure:"random_seed"`
}

// Candidates expands the configured epoch range into the ordered integer
// candidate list the sweep runner and smoother both operate over. Points
// are geometrically spaced across [min_epochs, max_epochs], the core
// spec's preferred spacing since epoch counts span orders of magnitude;
// duplicate roundings collapse to a single candidate.
func (e EpochSearchConfig) Candidates() []types.EpochCandidate {
	granularity := e.Granularity
	if granularity < 1 {
		granularity = 1
	}
	if e.MinEpochs < 1 || e.MaxEpochs < e.MinEpochs {
		return nil
	}

	var out []types.EpochCandidate
	seen := make(map[int]bool)
	if granularity == 1 {
		return append(out, types.EpochCandidate(e.MinEpochs))
	}

	logMin := math.Log(float64(e.MinEpochs))
	logMax := math.Log(float64(e.MaxEpochs))
	for i := 0; i < granularity; i++ {
		frac := float64(i) / float64(granularity-1)
		v := int(math.Round(math.Exp(logMin + frac*(logMax-logMin))))
		if !seen[v] {
			seen[v] = true
			out = append(out, types.EpochCandidate(v))
		}
	}
	return out
}

// FoldPolicyConfig mirrors fold.Policy for file/env configuration.
type FoldPolicyConfig struct {
	NFolds       int     `mapstructure:"n_folds"`
	TrainPct     float64 `mapstructure:"train_pct"`
	ValPct       float64 `mapstructure:"val_pct"`
	TestPct      float64 `mapstructure:"test_pct"`
	EmbargoHours float64 `mapstructure:"embargo_hours"`
}

// MarketConfig carries the market convention and the selector tunables.
// Annualization selects the Sharpe annualization factor, and
// StabilityMargin and RejectThreshold feed the selector. Timezone,
// SessionOpen and SessionClose are loaded but not read by the run pipeline;
// embargo boundaries are resolved from fold_policy.embargo_hours alone.
type MarketConfig struct {
	Timezone        string  `mapstructure:"timezone"`
	SessionOpen     string  `mapstructure:"session_open"`  // "HH:MM" local
	SessionClose    string  `mapstructure:"session_close"` // "HH:MM" local
	Annualization   string  `mapstructure:"annualization"` // "hourly", "crypto_daily"; anything else means "daily"
	StabilityMargin float64 `mapstructure:"stability_margin"`
	RejectThreshold float64 `mapstructure:"reject_threshold"`
}

// ViewConfig selects the reports cmd/awfes writes. NDJSONOutput gates the
// NDJSON file; ConsoleReport is not read, and the console summary is
// always printed.
type ViewConfig struct {
	ConsoleReport bool `mapstructure:"console_report"`
	NDJSONOutput  bool `mapstructure:"ndjson_output"`
}

// SmootherConfig selects the smoother variant carried across folds.
type SmootherConfig struct {
	Kind         string  `mapstructure:"kind"` // "bayesian", "ema", "sma", "median"
	EMAAlpha     float64 `mapstructure:"ema_alpha"`
	WindowSize   int     `mapstructure:"window_size"`
	CredibleLevel float64 `mapstructure:"credible_level"`
}

// LoggingConfig holds zerolog output configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "console"
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from a YAML file, then lets AWFES_-prefixed
// environment variables override individual fields.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("AWFES")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if v.IsSet("JWT_SECRET") {
		cfg.Auth.JWTSecret = v.GetString("JWT_SECRET")
	}
	if v.IsSet("DB_HOST") {
		cfg.Database.Host = v.GetString("DB_HOST")
	}
	if v.IsSet("DB_PORT") {
		cfg.Database.Port = v.GetInt("DB_PORT")
	}
	if v.IsSet("DB_USER") {
		cfg.Database.User = v.GetString("DB_USER")
	}
	if v.IsSet("DB_PASSWORD") {
		cfg.Database.Password = v.GetString("DB_PASSWORD")
	}
	if v.IsSet("DB_NAME") {
		cfg.Database.Database = v.GetString("DB_NAME")
	}
	if v.IsSet("OPERATOR_PASSWORD") {
		cfg.Auth.OperatorPassword = v.GetString("OPERATOR_PASSWORD")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.cors_allowed_origins", "*")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.operator_username", "operator")
	v.SetDefault("auth.operator_password", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "awfes")
	v.SetDefault("database.database", "awfes")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_life", 5*time.Minute)

	v.SetDefault("epoch_search.min_epochs", 5)
	v.SetDefault("epoch_search.max_epochs", 200)
	v.SetDefault("epoch_search.granularity", 5)
	v.SetDefault("epoch_search.max_workers", 4)
	v.SetDefault("epoch_search.random_seed", 42)

	v.SetDefault("fold_policy.n_folds", 30)
	v.SetDefault("fold_policy.train_pct", 0.6)
	v.SetDefault("fold_policy.val_pct", 0.2)
	v.SetDefault("fold_policy.test_pct", 0.2)
	v.SetDefault("fold_policy.embargo_hours", 24.0)

	v.SetDefault("market_convention.timezone", "America/New_York")
	v.SetDefault("market_convention.session_open", "09:30")
	v.SetDefault("market_convention.session_close", "16:00")
	v.SetDefault("market_convention.annualization", "daily")
	v.SetDefault("market_convention.stability_margin", 0.10)
	v.SetDefault("market_convention.reject_threshold", 0.30)

	v.SetDefault("view.console_report", true)
	v.SetDefault("view.ndjson_output", true)

	v.SetDefault("smoother.kind", "bayesian")
	v.SetDefault("smoother.ema_alpha", 0.30)
	v.SetDefault("smoother.window_size", 5)
	v.SetDefault("smoother.credible_level", 0.95)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", time.RFC3339)
}

// ConnectionString returns a PostgreSQL connection string for the run store.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}
