// Command migrate applies or rolls back the service's database schema
// migrations from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/litscreen/relevance-service/internal/config"
	"github.com/litscreen/relevance-service/internal/database"
	"github.com/litscreen/relevance-service/internal/observability"
)

// action is one schema operation selected by the CLI flags.
type action struct {
	name string
	run  func(m *database.Migrator, logger zerolog.Logger) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		up      = flag.Bool("up", false, "apply all pending migrations")
		down    = flag.Bool("down", false, "roll back all migrations")
		steps   = flag.Int("steps", 0, "apply N migrations (negative rolls back)")
		version = flag.Bool("version", false, "print the current schema version")
		force   = flag.Int("force", -1, "stamp the schema version without migrating")
		path    = flag.String("path", "", "override the migrations directory")
	)
	flag.Parse()

	act, err := selectAction(*up, *down, *steps, *version, *force)
	if err != nil {
		flag.Usage()
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "migrate").Logger()

	migrationDir := cfg.Database.MigrationPath
	if *path != "" {
		migrationDir = *path
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := act.run(m, logger); err != nil {
		return fmt.Errorf("%s: %w", act.name, err)
	}
	reportVersion(m, logger)
	return nil
}

// selectAction maps the flag set to a single operation. Exactly one
// action flag must be set.
func selectAction(up, down bool, steps int, version bool, force int) (action, error) {
	var chosen []action

	if up {
		chosen = append(chosen, action{"migrate up", func(m *database.Migrator, _ zerolog.Logger) error {
			return m.Up()
		}})
	}
	if down {
		chosen = append(chosen, action{"migrate down", func(m *database.Migrator, _ zerolog.Logger) error {
			return m.Down()
		}})
	}
	if steps != 0 {
		chosen = append(chosen, action{"migrate steps", func(m *database.Migrator, _ zerolog.Logger) error {
			return m.Steps(steps)
		}})
	}
	if version {
		chosen = append(chosen, action{"version", func(_ *database.Migrator, _ zerolog.Logger) error {
			return nil
		}})
	}
	if force >= 0 {
		chosen = append(chosen, action{"force version", func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Int("version", force).Msg("forcing migration version")
			return m.Force(force)
		}})
	}

	switch len(chosen) {
	case 0:
		return action{}, fmt.Errorf("specify one of: -up, -down, -steps N, -version, -force V")
	case 1:
		return chosen[0], nil
	default:
		return action{}, fmt.Errorf("specify only one action at a time")
	}
}

func reportVersion(m *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := m.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine schema version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current schema version")
}
