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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/sportsrunner/gamesdb"
	"github.com/cardinalhq/sportsrunner/internal/idgen"
)

// HistoryStore is the persistence the refresher needs.
type HistoryStore interface {
	HistoryFileHash(ctx context.Context, path string) (int64, bool, error)
	IngestHistoryFile(ctx context.Context, params gamesdb.IngestHistoryFileParams) error
}

// Refresher loads game history files from a directory into the store.
// It is not safe for concurrent passes; the supervisor runs one at a time.
type Refresher struct {
	store  HistoryStore
	dir    string
	runIDs idgen.IDGenerator
	known  mapset.Set[string]
}

// PassResult summarizes one refresh pass.
type PassResult struct {
	RunID     string
	Ingested  int
	Unchanged int
	Failed    int
	Games     int
}

func NewRefresher(store HistoryStore, dir string) *Refresher {
	return &Refresher{
		store:  store,
		dir:    dir,
		runIDs: idgen.NewULIDGenerator(),
		known:  mapset.NewThreadUnsafeSet[string](),
	}
}

// RunOnce ingests every new or changed *.json file in the history directory.
// A failing file does not stop the pass; all failures are returned together.
func (r *Refresher) RunOnce(ctx context.Context) (PassResult, error) {
	result := PassResult{RunID: r.runIDs.Make(time.Now())}
	ctx, span := tracer.Start(ctx, "refresh.pass", trace.WithAttributes(
		attribute.String("run_id", result.RunID),
		attribute.String("dir", r.dir),
	))
	defer span.End()

	ll := slog.Default().With(slog.String("runID", result.RunID))

	files, err := listHistoryFiles(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		ll.Debug("History directory does not exist, nothing to refresh", slog.String("dir", r.dir))
		return result, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list history files")
		return result, fmt.Errorf("failed to list history directory %s: %w", r.dir, err)
	}

	var errs *multierror.Error
	seen := mapset.NewThreadUnsafeSetWithSize[string](len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		seen.Add(path)

		games, changed, err := r.refreshFile(ctx, path)
		switch {
		case err != nil:
			result.Failed++
			historyFilesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", path, err))
		case !changed:
			result.Unchanged++
			historyFilesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unchanged")))
		default:
			result.Ingested++
			result.Games += games
			historyFilesCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ingested")))
			ll.Info("Ingested history file", slog.String("path", path), slog.Int("games", games))
		}
	}

	for _, gone := range r.known.Difference(seen).ToSlice() {
		ll.Info("History file removed, keeping its games", slog.String("path", gone))
	}
	r.known = seen

	refreshPasses.Add(ctx, 1)
	span.SetAttributes(
		attribute.Int("ingested", result.Ingested),
		attribute.Int("unchanged", result.Unchanged),
		attribute.Int("failed", result.Failed),
	)
	if err := errs.ErrorOrNil(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history files failed")
		return result, err
	}
	return result, nil
}

func (r *Refresher) refreshFile(ctx context.Context, path string) (int, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false, err
	}
	hash := int64(xxhash.Sum64(b))

	prev, ok, err := r.store.HistoryFileHash(ctx, path)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up previous hash: %w", err)
	}
	if ok && prev == hash {
		return 0, false, nil
	}

	doc, err := ParseHistory(b)
	if err != nil {
		return 0, false, err
	}
	params := ingestParams(path, hash, doc)
	if err := r.store.IngestHistoryFile(ctx, params); err != nil {
		return 0, false, err
	}
	return len(params.Games), true, nil
}

// listHistoryFiles returns the *.json regular files directly inside dir, sorted by name.
func listHistoryFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
