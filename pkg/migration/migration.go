package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Config holds migration configuration. When Source is set the migrations are
// read from it and MigrationsPath names the directory inside it; otherwise
// MigrationsPath is a directory on disk.
type Config struct {
	MigrationsPath string
	DatabaseURL    string
	Source         fs.FS
	Logger         *zerolog.Logger
}

// Runner handles database migrations
type Runner struct {
	config *Config
	logger zerolog.Logger
}

// NewRunner creates a new migration runner
func NewRunner(config *Config) *Runner {
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Runner{
		config: config,
		logger: logger.With().Str("component", "migration").Logger(),
	}
}

// Up runs all pending migrations
func (r *Runner) Up() error {
	r.logger.Info().Msg("running database migrations")

	m, err := r.getMigrate()
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info().Msg("no new migrations to run")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Info().Msg("migrations completed successfully")
	return nil
}

// Down rolls back the last migration
func (r *Runner) Down() error {
	r.logger.Info().Msg("rolling back last migration")

	m, err := r.getMigrate()
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info().Msg("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	r.logger.Info().Msg("migration rolled back successfully")
	return nil
}

// Force sets the migration version without running migrations
// Use this carefully to fix broken migration states
func (r *Runner) Force(version int) error {
	r.logger.Warn().Int("version", version).Msg("forcing migration version")

	m, err := r.getMigrate()
	if err != nil {
		return fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force version: %w", err)
	}

	r.logger.Info().Int("version", version).Msg("migration version forced")
	return nil
}

// Version returns the current migration version
func (r *Runner) Version() (uint, bool, error) {
	m, err := r.getMigrate()
	if err != nil {
		return 0, false, fmt.Errorf("failed to initialize migrate: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}

	return version, dirty, nil
}

// getMigrate creates a new migrate instance
func (r *Runner) getMigrate() (*migrate.Migrate, error) {
	// Open database connection
	db, err := sql.Open("postgres", r.config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	if r.config.Source != nil {
		src, err := iofs.New(r.config.Source, r.config.MigrationsPath)
		if err != nil {
			_ = driver.Close()
			return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to create migrate instance: %w", err)
		}
		return m, nil
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.config.MigrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// AutoMigrate runs pending migrations on application start and refuses to
// continue from a dirty state.
func AutoMigrate(cfg Config) error {
	runner := NewRunner(&cfg)
	logger := runner.logger

	version, dirty, err := runner.Version()
	if err != nil {
		logger.Error().Err(err).Msg("failed to get migration version")
		return err
	}

	if dirty {
		logger.Warn().Uint("version", version).Msg("database is in dirty state; fix it manually or force a version")
		return fmt.Errorf("database in dirty state at version %d", version)
	}

	logger.Info().Uint("version", version).Msg("current migration version")

	if err := runner.Up(); err != nil {
		return err
	}

	newVersion, _, err := runner.Version()
	if err != nil {
		return err
	}

	logger.Info().Uint("from_version", version).Uint("to_version", newVersion).Msg("migration completed")
	return nil
}
