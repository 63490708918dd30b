package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/dcict/exam-backend/internal/config"
	"github.com/dcict/exam-backend/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

func main() {
	var migrationDir string
	flag.StringVar(&migrationDir, "path", "migrations", "Path to migration files")
	flag.Usage = printUsage
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	m, err := migrate.New("file://"+migrationDir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", migrationDir).Msg("Migration failed to initialize")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("Migration close error")
		}
	}()

	switch args[0] {
	case "up":
		report(log, m.Up(), "up")
	case "down":
		report(log, m.Down(), "down")
	case "steps":
		n := intArg(args, "steps")
		report(log, m.Steps(n), fmt.Sprintf("steps %d", n))
	case "force":
		v := intArg(args, "force")
		if err := m.Force(v); err != nil {
			log.Fatal().Err(err).Int("version", v).Msg("Force failed")
		}
		log.Info().Int("version", v).Msg("Forced schema version")
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No migrations applied yet")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Version failed")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
	default:
		printUsage()
	}
}

// report treats ErrNoChange as success.
func report(log zerolog.Logger, err error, op string) {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Info().Str("op", op).Msg("Schema already up to date")
	case err != nil:
		log.Fatal().Err(err).Str("op", op).Msg("Migration failed")
	default:
		log.Info().Str("op", op).Msg("Migration applied")
	}
}

func intArg(args []string, cmd string) int {
	if len(args) < 2 {
		fmt.Printf("%s requires a numeric argument\n", cmd)
		os.Exit(2)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Printf("invalid number %q for %s\n", args[1], cmd)
		os.Exit(2)
	}
	return n
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, steps <n>, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
