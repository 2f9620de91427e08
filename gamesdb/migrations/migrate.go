// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// CheckMode defines what happens when the schema version does not match.
type CheckMode int

const (
	// CheckModeWarn logs the mismatch and continues.
	CheckModeWarn CheckMode = iota
	// CheckModeFail returns an error on any mismatch or dirty state.
	CheckModeFail
	// CheckModeSkip does not look at the database at all.
	CheckModeSkip
)

// withMigrator runs fn with a golang-migrate instance bound to pool.
func withMigrator(pool *pgxpool.Pool, fn func(*migrate.Migrate) error) error {
	sourceDriver, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return fmt.Errorf("failed to create iofs driver: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func() {
		_ = sqlDB.Close()
	}()

	dbDriver, err := pgx.WithInstance(sqlDB, &pgx.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return fmt.Errorf("failed to create pgx driver: %w", err)
	}
	defer func() {
		_ = dbDriver.Close()
	}()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return fn(m)
}

// RunMigrationsUp applies all up migrations using the embedded migration files.
func RunMigrationsUp(_ context.Context, pool *pgxpool.Pool) error {
	return withMigrator(pool, func(m *migrate.Migrate) error {
		_, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("failed to get current version: %w", err)
		}
		if dirty {
			return errors.New("migration is dirty, please fix it before proceeding")
		}

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	})
}

// CheckVersion compares the database schema version against the newest embedded migration.
func CheckVersion(_ context.Context, pool *pgxpool.Pool, mode CheckMode) error {
	if mode == CheckModeSkip {
		slog.Debug("Migration version checking skipped")
		return nil
	}

	expected, err := LatestVersion(migrationFiles)
	if err != nil {
		return err
	}

	var current uint
	var dirty bool
	err = withMigrator(pool, func(m *migrate.Migrate) error {
		v, d, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get current version: %w", err)
		}
		current, dirty = v, d
		return nil
	})
	if err != nil {
		return err
	}

	var problem error
	switch {
	case dirty:
		problem = fmt.Errorf("schema version %d is dirty", current)
	case current < expected:
		problem = fmt.Errorf("schema version %d is older than expected %d, run 'sportsrunner migrate'", current, expected)
	case current > expected:
		problem = fmt.Errorf("schema version %d is newer than expected %d, the binary may need updating", current, expected)
	default:
		return nil
	}

	if mode == CheckModeWarn {
		slog.Warn("Database schema mismatch, continuing anyway",
			slog.Uint64("currentVersion", uint64(current)),
			slog.Uint64("expectedVersion", uint64(expected)),
			slog.Any("error", problem))
		return nil
	}
	return problem
}

// LatestVersion extracts the highest migration version from files named like
// "1760000000_initial.up.sql".
func LatestVersion(files fs.FS) (uint, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		if uint(version) > maxVersion {
			maxVersion = uint(version)
		}
	}

	if maxVersion == 0 {
		return 0, errors.New("no valid migration files found")
	}
	return maxVersion, nil
}
