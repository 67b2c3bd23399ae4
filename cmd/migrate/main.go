package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/liamcoop/decisions/internal/logger"
)

// migrator is the part of *migrate.Migrate the commands use
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, steps, version, force")
	flag.Parse()

	_ = godotenv.Load(".env")
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("database URL is required, use -database or DATABASE_URL")
	}

	logger.Info("connecting to database", "migrations", migrationsPath)

	// lib/pq accepts both URL and key=value connection strings
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsPath), "postgres", driver)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	if err := run(m, command, flag.Args()); err != nil {
		logger.Fatal("migration command failed", "command", command, "error", err)
	}
}

// run executes one migration command. ErrNoChange is not an error.
func run(m migrator, command string, args []string) error {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("migrations completed")

	case "down":
		err := m.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
		logger.Info("rollback completed")

	case "steps":
		n, err := intArg(args, "steps")
		if err != nil {
			return err
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to migrate %d steps: %w", n, err)
		}
		logger.Info("migrated steps", "steps", n)

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migration applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		version, err := intArg(args, "force")
		if err != nil {
			return err
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
		logger.Info("forced version", "version", version)

	default:
		return fmt.Errorf("unknown command %q (use: up, down, steps, version, force)", command)
	}
	return nil
}

func intArg(args []string, command string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%s requires a number: -command %s <n>", command, command)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[0], err)
	}
	return n, nil
}
