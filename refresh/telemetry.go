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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("github.com/cardinalhq/sportsrunner/refresh")

	historyFilesCounter metric.Int64Counter
	refreshPasses       metric.Int64Counter
	refreshRestarts     metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/sportsrunner/refresh")

	var err error
	historyFilesCounter, err = meter.Int64Counter(
		"sportsrunner.refresh.history_files",
		metric.WithDescription("History files seen by the refresher, by outcome (ingested, unchanged, failed)"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create refresh.history_files counter: %w", err))
	}

	refreshPasses, err = meter.Int64Counter(
		"sportsrunner.refresh.passes",
		metric.WithDescription("Completed refresh passes"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create refresh.passes counter: %w", err))
	}

	refreshRestarts, err = meter.Int64Counter(
		"sportsrunner.refresh.restarts",
		metric.WithDescription("Times the refresh task was restarted after a panic"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create refresh.restarts counter: %w", err))
	}
}
