package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"trendr/internal/db"
	"trendr/pkg/logger"
)

const usage = "usage: go run ./cmd/migrate [up|down|version] [steps]"

var loadEnvFunc = godotenv.Load

type command struct {
	name  string
	steps int
}

func parseArgs(args []string) (command, error) {
	if len(args) < 1 {
		return command{}, errors.New(usage)
	}
	cmd := command{name: args[0], steps: 1}
	switch cmd.name {
	case "up", "version":
	case "down":
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return command{}, fmt.Errorf("invalid down steps: %q", args[1])
			}
			cmd.steps = n
		}
	default:
		return command{}, fmt.Errorf("unknown command %q. %s", cmd.name, usage)
	}
	return cmd, nil
}

func main() {
	_ = loadEnvFunc()
	log := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cmd, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Fatal().Msg(err.Error())
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, strings.TrimSpace(os.Getenv("DATABASE_URL")), log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()

	m, err := db.NewMigrator(pool)
	if err != nil {
		log.Fatal().Err(err).Msg("load migrations")
	}

	switch cmd.name {
	case "up":
		n, err := m.Up(ctx)
		if err != nil {
			log.Fatal().Err(err).Int("applied", n).Msg("apply migrations up")
		}
		log.Info().Int("applied", n).Msg("migrations up complete")
	case "down":
		n, err := m.Down(ctx, cmd.steps)
		if err != nil {
			log.Fatal().Err(err).Int("rolled_back", n).Msg("apply migrations down")
		}
		log.Info().Int("rolled_back", n).Msg("migrations down complete")
	case "version":
		version, name, err := m.Version(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("read current version")
		}
		if version == 0 {
			log.Info().Msg("no migrations applied")
			return
		}
		log.Info().Int64("version", version).Str("name", name).Msg("current version")
	}
}
