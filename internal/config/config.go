package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/gokatarajesh/quest-engine/internal/quest/grading"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quest-engine"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres    Postgres
	Redis       Redis
	Security    Security
	Storage     Storage
	Rewards     Rewards
	Questions   Questions
	Session     Session
	Leaderboard Leaderboard
	CORS        CORS
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:"localhost"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER" envDefault:"quest"`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Database string `env:"PG_DATABASE" envDefault:"quest"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// DSN renders a libpq-style connection string for database/sql via pgx/stdlib.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// ConnString is DSN plus pool settings, for pgxpool.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("%s pool_max_conns=%d", p.DSN(), p.MaxConns)
}

// Redis holds cache, progress and leaderboard configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Security stores the bearer token verification settings. Tokens are issued
// by the identity provider; the engine only verifies them.
type Security struct {
	JWTSecret string `env:"JWT_SECRET,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:""`
}

// Storage selects where attempts and quests live.
type Storage struct {
	Backend  string `env:"STORAGE_BACKEND" envDefault:"postgres"`
	SeedFile string `env:"QUEST_SEED_FILE" envDefault:"configs/quests.json"`
}

// Rewards groups grading and reward issuance settings.
type Rewards struct {
	TimeZone         string `env:"REWARD_TIMEZONE" envDefault:"UTC"`
	RankTable        string `env:"RANK_TABLE" envDefault:"S:100,A:67,B:34,C:0"`
	MaxCommitRetries int    `env:"REWARD_MAX_COMMIT_RETRIES" envDefault:"3"`
}

// Location resolves the calendar used for daily scope keys.
func (r Rewards) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("reward time zone %q: %w", r.TimeZone, err)
	}
	return loc, nil
}

// Ranks parses the configured rank table.
func (r Rewards) Ranks() (grading.RankTable, error) {
	return grading.ParseRankTable(r.RankTable)
}

// Questions governs the question set provider.
type Questions struct {
	CacheTTL        time.Duration `env:"QUESTION_CACHE_TTL" envDefault:"10m"`
	DailyCount      int           `env:"DAILY_QUESTION_COUNT" envDefault:"5"`
	FetchTimeout    time.Duration `env:"QUESTION_FETCH_TIMEOUT_SECONDS" envDefault:"4s"`
	PrewarmInterval time.Duration `env:"QUESTION_PREWARM_INTERVAL" envDefault:"30m"`
	DailyKinds      []string      `env:"DAILY_KINDS" envSeparator:"," envDefault:"listening"`
}

// Session configures the server-driven session controller.
type Session struct {
	ProgressTTL      time.Duration `env:"SESSION_PROGRESS_TTL" envDefault:"168h"`
	AutoAdvanceDelay time.Duration `env:"SESSION_AUTO_ADVANCE" envDefault:"0s"`
}

// Leaderboard governs snapshotting and window retention.
type Leaderboard struct {
	SnapshotInterval time.Duration `env:"LEADERBOARD_SNAPSHOT_INTERVAL" envDefault:"5m"`
	SnapshotTopN     int           `env:"LEADERBOARD_SNAPSHOT_TOP" envDefault:"50"`
	EntryTTL         time.Duration `env:"LEADERBOARD_ENTRY_TTL" envDefault:"192h"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization,Idempotency-Key"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules the struct tags cannot express.
func (c *App) Validate() error {
	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Postgres.Password == "" {
			return fmt.Errorf("PG_PASSWORD is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if _, err := c.Rewards.Location(); err != nil {
		return err
	}
	if _, err := c.Rewards.Ranks(); err != nil {
		return fmt.Errorf("RANK_TABLE: %w", err)
	}
	if c.Questions.DailyCount <= 0 {
		return fmt.Errorf("DAILY_QUESTION_COUNT must be positive")
	}
	return nil
}
