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
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// handleSignals returns a context that is cancelled on the first SIGINT or
// SIGTERM, or when cancel is called. The signal that arrived is logged.
// Both the request loop and the background refresh stop on it.
func handleSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, shutdownSignals...)

	go func() {
		defer signal.Stop(sigc)
		select {
		case sig := <-sigc:
			slog.Info("Received signal, shutting down", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
