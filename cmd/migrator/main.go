package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/quest-engine/internal/config"
	"github.com/gokatarajesh/quest-engine/internal/db/migrations"
	"github.com/gokatarajesh/quest-engine/internal/db/repository"
	"github.com/gokatarajesh/quest-engine/internal/quest"
)

func main() {
	var (
		command  = flag.String("command", "up", "Migration command: up, down, status or seed")
		seedFile = flag.String("seed", "configs/quests.json", "Quest catalog loaded by the seed command")
	)
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	_ = godotenv.Load("configs/.env")

	var pg config.Postgres
	if err := env.Parse(&pg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse postgres configuration")
	}
	if pg.Password == "" {
		log.Fatal().Msg("PG_PASSWORD environment variable is required")
	}

	db, err := sql.Open("pgx", pg.DSN())
	if err != nil {
		log.Fatal().Err(err).Str("host", pg.Host).Int("port", pg.Port).Msg("failed to open database connection")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	log.Info().
		Str("host", pg.Host).
		Int("port", pg.Port).
		Str("database", pg.Database).
		Msg("connected to database")

	goose.SetBaseFS(migrations.FS)
	goose.SetTableName("goose_db_version")
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal().Err(err).Msg("failed to set goose dialect")
	}

	switch *command {
	case "up":
		if err := goose.Up(db, "."); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations up")
		}
		log.Info().Msg("migrations applied successfully")

	case "down":
		if err := goose.Down(db, "."); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations down")
		}
		log.Info().Msg("migrations rolled back successfully")

	case "status":
		if err := goose.Status(db, "."); err != nil {
			log.Fatal().Err(err).Msg("failed to get migration status")
		}

	case "seed":
		if err := seed(context.Background(), pg, *seedFile); err != nil {
			log.Fatal().Err(err).Str("file", *seedFile).Msg("failed to seed quests")
		}

	default:
		log.Fatal().Str("command", *command).Msg("unknown command. Use: up, down, status or seed")
	}
}

func seed(ctx context.Context, pg config.Postgres, path string) error {
	entries, err := quest.LoadCatalog(path)
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, pg.ConnString())
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := repository.NewQuestRepository(pool)
	for _, e := range entries {
		if err := repo.SaveQuest(ctx, e.Quest, e.Questions); err != nil {
			return err
		}
		log.Info().Str("quest_id", e.Quest.ID).Int("questions", len(e.Questions)).Msg("quest seeded")
	}
	return nil
}
