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
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/sportsrunner/config"
	"github.com/cardinalhq/sportsrunner/gamesdb"
	"github.com/cardinalhq/sportsrunner/gamesdb/migrations"
	"github.com/cardinalhq/sportsrunner/internal/bootstrap"
	"github.com/cardinalhq/sportsrunner/internal/dbopen"
	"github.com/cardinalhq/sportsrunner/internal/healthcheck"
	"github.com/cardinalhq/sportsrunner/predict"
	"github.com/cardinalhq/sportsrunner/refresh"
	"github.com/cardinalhq/sportsrunner/sportsapi"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sports API and refresh game history in the background",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "sportsrunner-serve"
			doneCtx, doneFx, err := setupTelemetry(servicename)
			if err != nil {
				return err
			}
			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			cfg, err := config.Load()
			if err != nil {
				slog.Error("Failed to load config", slog.Any("error", err))
				return err
			}

			health := healthcheck.NewServer(healthcheck.GetConfigFromEnv())
			opts := serveOptions(cfg, health)

			if err := bootstrap.Run(doneCtx, opts); err != nil {
				var se *bootstrap.StartupError
				if errors.As(err, &se) {
					slog.Error("Startup failed", slog.String("phase", se.Phase.String()), slog.Any("error", se.Err))
				} else {
					slog.Error("Server stopped", slog.Any("error", err))
				}
				return err
			}
			slog.Info("Shutdown complete")
			return nil
		},
	}

	rootCmd.AddCommand(cmd)
}

// serveOptions wires the production components into the startup sequence.
func serveOptions(cfg *config.Config, health *healthcheck.Server) bootstrap.Options {
	var predictor *predict.Predictor

	return bootstrap.Options{
		LoadEnvironment: func() (config.Environment, error) {
			env, err := config.LoadEnvironment(nil)
			if err != nil {
				return env, err
			}
			slog.Info("Environment validated",
				slog.String("modelDir", env.ModelDir),
				slog.String("dataDir", env.DataDir))
			return env, nil
		},

		OpenPool: func(ctx context.Context, env config.Environment) (*dbopen.Pool, error) {
			pool, err := dbopen.NewConnectionPool(ctx, env.DatabaseURL,
				dbopen.WithCheckoutTimeout(cfg.Pool.CheckoutTimeout))
			if err != nil {
				return nil, err
			}
			if err := migrations.CheckVersion(ctx, pool.Raw(), migrations.CheckModeWarn); err != nil {
				pool.Close()
				return nil, err
			}
			health.AddCheck("database", func(ctx context.Context) error {
				return pool.Checkout(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
					return conn.Ping(ctx)
				})
			})
			return pool, nil
		},

		StartBackground: func(ctx context.Context, res *bootstrap.Resources) error {
			store := gamesdb.NewStore(res.Pool)
			historyDir := filepath.Join(res.Env.DataDir, cfg.Refresh.HistorySubdir)
			refresher := refresh.NewRefresher(store, historyDir)

			health.SetReadyCondition(healthcheck.ConditionRefreshRunning, false)
			sup := refresh.NewSupervisor("history-refresh",
				refresher.Task(cfg.Refresh.Interval),
				refresh.WithRunningObserver(func(running bool) {
					health.SetReadyCondition(healthcheck.ConditionRefreshRunning, running)
				}))
			if !sup.Start(ctx) {
				return errors.New("history refresh already started")
			}
			slog.Info("History refresh started",
				slog.String("dir", historyDir),
				slog.Duration("interval", cfg.Refresh.Interval))

			predictor = predict.NewPredictor(res.Env.ModelDir, cfg.Predict.CacheTTL)
			go func() {
				if err := predictor.Watch(ctx); err != nil {
					slog.Warn("Model watcher stopped; relying on cache expiry", slog.Any("error", err))
				}
			}()
			return nil
		},

		NewServer: func(res *bootstrap.Resources) (bootstrap.Server, error) {
			return sportsapi.NewServer(gamesdb.NewStore(res.Pool), predictor, sportsapi.Options{
				ListenAddr:      cfg.Server.ListenAddr,
				CORS:            cfg.CORS,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}), nil
		},

		Health: health,

		Observer: func(p bootstrap.Phase) {
			slog.Info("Startup phase reached", slog.String("phase", p.String()))
		},
	}
}
