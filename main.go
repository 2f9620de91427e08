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

package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	gomaxecs "github.com/rdforte/gomaxecs/maxprocs"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cardinalhq/sportsrunner/cmd"
)

// defaultGCPercent applies when GOGC is unset.
const defaultGCPercent = 75

func stderrf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
}

func init() {
	// Game schedules and history timestamps are compared in UTC.
	time.Local = time.UTC
	tuneRuntime()
}

// tuneRuntime sizes GOMAXPROCS, GOMEMLIMIT and GOGC for the container the
// process runs in. Failures are reported on stderr; the defaults stay.
func tuneRuntime() {
	if gomaxecs.IsECS() {
		if _, err := gomaxecs.Set(gomaxecs.WithLogger(stderrf)); err != nil {
			stderrf("gomaxecs: %v", err)
		}
	} else if _, err := maxprocs.Set(maxprocs.Logger(stderrf)); err != nil {
		stderrf("automaxprocs: %v", err)
	}

	limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.8),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	)
	if err != nil {
		stderrf("automemlimit: %v", err)
	} else {
		stderrf("memlimit: GOMEMLIMIT=%d", limit)
	}

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(defaultGCPercent)
		stderrf("GOGC unset, using %d", defaultGCPercent)
	}
}

func main() {
	cmd.Execute()
}
