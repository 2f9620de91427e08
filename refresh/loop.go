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

package refresh

import (
	"context"
	"log/slog"
	"time"
)

// PeriodicLoop runs f immediately and then every period until ctx is done.
// Errors from f are logged and the loop keeps going.
func PeriodicLoop(ctx context.Context, period time.Duration, f func(context.Context) error) error {
	if err := f(ctx); err != nil {
		slog.Error("periodic task error", slog.Any("error", err))
	}

	t := time.NewTicker(period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := f(ctx); err != nil {
				slog.Error("periodic task error", slog.Any("error", err))
			}
		}
	}
}

// Task returns the body of the background refresh task: a refresh pass
// right away and then every interval.
func (r *Refresher) Task(interval time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		return PeriodicLoop(ctx, interval, func(ctx context.Context) error {
			res, err := r.RunOnce(ctx)
			slog.Debug("Refresh pass finished",
				slog.String("runID", res.RunID),
				slog.Int("ingested", res.Ingested),
				slog.Int("unchanged", res.Unchanged),
				slog.Int("failed", res.Failed))
			return err
		})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
