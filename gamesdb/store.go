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

package gamesdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/sportsrunner/internal/dbopen"
)

// Store runs queries against connections borrowed from the shared pool.
// Every call holds at most one connection, for the duration of that call.
type Store struct {
	pool *dbopen.Pool
}

// NewStore creates a new Store. The pool stays owned by the caller.
func NewStore(pool *dbopen.Pool) *Store {
	return &Store{pool: pool}
}

func (store *Store) withQueries(ctx context.Context, fn func(context.Context, *Queries) error) error {
	return store.pool.Checkout(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return fn(ctx, New(conn))
	})
}

func (store *Store) execTx(ctx context.Context, fn func(context.Context, *Queries) error) error {
	return store.pool.Checkout(ctx, func(ctx context.Context, conn *pgxpool.Conn) (err error) {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return err
		}

		committed := false
		defer func() {
			if committed {
				return
			}
			// Never use the caller ctx for cleanup as it may be cancelled.
			rbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			}
		}()

		if err = fn(ctx, New(conn).WithTx(tx)); err != nil {
			return err
		}

		commitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err = tx.Commit(commitCtx); err != nil {
			return err
		}
		committed = true
		return nil
	})
}

// ListGamesWithOdds returns games scheduled at or after params.Since with their odds attached.
func (store *Store) ListGamesWithOdds(ctx context.Context, params ListGamesParams) ([]GameWithOdds, error) {
	var out []GameWithOdds
	err := store.withQueries(ctx, func(ctx context.Context, q *Queries) error {
		games, err := q.ListGames(ctx, params)
		if err != nil {
			return fmt.Errorf("failed to list games: %w", err)
		}
		if len(games) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(games))
		for i, g := range games {
			ids[i] = g.ID
		}
		odds, err := q.ListOddsForGames(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to list odds: %w", err)
		}

		out = AttachOdds(games, odds)
		return nil
	})
	return out, err
}

// AttachOdds groups odds under the game they belong to, keeping the order of games.
func AttachOdds(games []Game, odds []GameOdd) []GameWithOdds {
	byGame := make(map[uuid.UUID][]GameOdd, len(games))
	for _, o := range odds {
		byGame[o.GameID] = append(byGame[o.GameID], o)
	}

	out := make([]GameWithOdds, len(games))
	for i, g := range games {
		gameOdds := byGame[g.ID]
		if gameOdds == nil {
			gameOdds = []GameOdd{}
		}
		out[i] = GameWithOdds{Game: g, Odds: gameOdds}
	}
	return out
}

// ListUpcomingGames returns up to limit games that are not final yet.
func (store *Store) ListUpcomingGames(ctx context.Context, limit int32) ([]Game, error) {
	var out []Game
	err := store.withQueries(ctx, func(ctx context.Context, q *Queries) error {
		var err error
		out, err = q.ListUpcomingGames(ctx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming games: %w", err)
	}
	return out, nil
}

// HistoryFileHash returns the content hash recorded for path, if the file was ingested before.
func (store *Store) HistoryFileHash(ctx context.Context, path string) (int64, bool, error) {
	var hf HistoryFile
	err := store.withQueries(ctx, func(ctx context.Context, q *Queries) error {
		var err error
		hf, err = q.GetHistoryFile(ctx, path)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return hf.ContentHash, true, nil
}

// IngestHistoryFileParams is one parsed history file ready to be written.
type IngestHistoryFileParams struct {
	Path        string
	ContentHash int64
	Games       []UpsertGameParams
	Odds        []GameOdd
}

// IngestHistoryFile upserts the games and odds of one history file and records
// its hash, all in a single transaction.
func (store *Store) IngestHistoryFile(ctx context.Context, params IngestHistoryFileParams) error {
	return store.execTx(ctx, func(ctx context.Context, q *Queries) error {
		for _, g := range params.Games {
			if err := q.UpsertGame(ctx, g); err != nil {
				return fmt.Errorf("failed to upsert game %s: %w", g.SourceKey, err)
			}
		}
		for _, o := range params.Odds {
			if err := q.UpsertGameOdd(ctx, o); err != nil {
				return fmt.Errorf("failed to upsert odds for game %s from %s: %w", o.GameID, o.BookName, err)
			}
		}
		return q.RecordHistoryFile(ctx, RecordHistoryFileParams{
			Path:        params.Path,
			ContentHash: params.ContentHash,
			GameCount:   int32(len(params.Games)),
		})
	})
}
