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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/sportsrunner/config"
	"github.com/cardinalhq/sportsrunner/gamesdb/migrations"
	"github.com/cardinalhq/sportsrunner/internal/dbopen"
)

func init() {
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  "Apply the embedded schema migrations to the database named by DATABASE_URL",
	RunE:  migrate,
}

func migrate(_ *cobra.Command, _ []string) error {
	url, ok := os.LookupEnv(config.EnvDatabaseURL)
	if !ok || url == "" {
		return &config.MissingVariableError{Name: config.EnvDatabaseURL}
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(5*time.Minute))
	defer cancel()

	pool, err := dbopen.NewConnectionPool(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("Running migrations", slog.String("table", migrations.MigrationsTable))
	if err := migrations.RunMigrationsUp(ctx, pool.Raw()); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	slog.Info("Migrations completed successfully")
	return nil
}
