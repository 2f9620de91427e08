//go:build integration

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

package testhelpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/postgres"

	"github.com/cardinalhq/sportsrunner/gamesdb/migrations"
	"github.com/cardinalhq/sportsrunner/internal/dbopen"
)

const (
	testDBUser     = "sports"
	testDBPassword = "sports"
	testDBName     = "sportsdb"
)

// StartPostgres starts a throwaway postgres container and returns its connection URL.
// When SPORTSRUNNER_TEST_DATABASE_URL is set that database is used instead.
func StartPostgres(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("SPORTSRUNNER_TEST_DATABASE_URL"); url != "" {
		return url
	}

	p := postgres.Preset(
		postgres.WithUser(testDBUser, testDBPassword),
		postgres.WithDatabase(testDBName),
		postgres.WithVersion("16"),
	)
	container, err := gnomock.Start(p, gnomock.WithTimeout(2*time.Minute))
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := gnomock.Stop(container); err != nil {
			t.Logf("Failed to stop postgres container: %v", err)
		}
	})

	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		testDBUser, testDBPassword, container.DefaultAddress(), testDBName)
}

// SetupTestDB starts postgres, applies migrations and returns a shared pool.
// The pool is closed with t.Cleanup.
func SetupTestDB(t *testing.T, opts ...dbopen.PoolOption) (*dbopen.Pool, string) {
	t.Helper()

	url := StartPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := dbopen.NewConnectionPool(ctx, url, opts...)
	if err != nil {
		t.Fatalf("Failed to open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrations.RunMigrationsUp(ctx, pool.Raw()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return pool, url
}
