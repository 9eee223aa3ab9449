package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORAGE_BACKEND", "memory")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "quest-engine", cfg.Name)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 5, cfg.Questions.DailyCount)
	assert.Equal(t, []string{"listening"}, cfg.Questions.DailyKinds)
	assert.Equal(t, 168*time.Hour, cfg.Session.ProgressTTL)
	assert.Equal(t, 3, cfg.Rewards.MaxCommitRetries)

	loc, err := cfg.Rewards.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	ranks, err := cfg.Rewards.Ranks()
	require.NoError(t, err)
	assert.Equal(t, "B", ranks.Rank(34))
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*App){
		"postgres without password": func(c *App) { c.Storage.Backend = BackendPostgres },
		"unknown backend":           func(c *App) { c.Storage.Backend = "bolt" },
		"bad time zone":             func(c *App) { c.Rewards.TimeZone = "Mars/Olympus" },
		"bad rank table":            func(c *App) { c.Rewards.RankTable = "S:100" },
		"zero daily count":          func(c *App) { c.Questions.DailyCount = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			cfg, err := Load(context.Background())
			require.NoError(t, err)

			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPostgresConnString(t *testing.T) {
	p := Postgres{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require", MaxConns: 4}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=require", p.DSN())
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=require pool_max_conns=4", p.ConnString())
}
