package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // File source driver
)

// ErrDirtySchema is returned when an earlier migration stopped halfway. The
// settlement tables must be repaired by hand before the service starts.
type ErrDirtySchema struct {
	Version uint
}

func (e ErrDirtySchema) Error() string {
	return fmt.Sprintf("settlement schema is dirty at version %d", e.Version)
}

// RunMigrations brings the settlement schema (settlements, participants,
// expenses, snapshots and the outbox) up to date from migrationsPath, usually
// migrations/postgres.
func RunMigrations(logger *slog.Logger, databaseURL string, migrationsPath string) error {
	if migrationsPath == "" {
		return errors.New("migrations path cannot be empty")
	}
	if databaseURL == "" {
		return errors.New("database URL cannot be empty")
	}

	m, err := migrate.New(migrationSource(migrationsPath), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	from, err := schemaVersion(m)
	if err != nil {
		_, _ = m.Close()
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_, _ = m.Close()
		return fmt.Errorf("failed to apply settlement migrations: %w", err)
	}

	to, err := schemaVersion(m)
	if err != nil {
		_, _ = m.Close()
		return err
	}

	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		return fmt.Errorf("migration source error: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migration database error: %w", dbErr)
	}

	if from == to {
		logger.Info("Settlement schema up to date", "version", to)
	} else {
		logger.Info("Settlement schema migrated", "from_version", from, "version", to)
	}
	return nil
}

// schemaVersion reports 0 for an empty database
func schemaVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read settlement schema version: %w", err)
	}
	if dirty {
		return version, ErrDirtySchema{Version: version}
	}
	return version, nil
}

func migrationSource(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	return "file://" + path
}
