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
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const gameColumns = `id, source_key, league, home_team_name, away_team_name,
  home_team_score, away_team_score, start_time, scheduled_at, updated_at`

func scanGames(rows pgx.Rows) ([]Game, error) {
	defer rows.Close()
	var items []Game
	for rows.Next() {
		var i Game
		if err := rows.Scan(
			&i.ID,
			&i.SourceKey,
			&i.League,
			&i.HomeTeamName,
			&i.AwayTeamName,
			&i.HomeTeamScore,
			&i.AwayTeamScore,
			&i.StartTime,
			&i.ScheduledAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listGames = `-- name: ListGames :many
SELECT ` + gameColumns + `
FROM games
WHERE scheduled_at >= $1
ORDER BY scheduled_at, id
LIMIT $2
`

type ListGamesParams struct {
	Since time.Time `json:"since"`
	Limit int32     `json:"limit"`
}

func (q *Queries) ListGames(ctx context.Context, arg ListGamesParams) ([]Game, error) {
	rows, err := q.db.Query(ctx, listGames, arg.Since, arg.Limit)
	if err != nil {
		return nil, err
	}
	return scanGames(rows)
}

const listUpcomingGames = `-- name: ListUpcomingGames :many
SELECT ` + gameColumns + `
FROM games
WHERE start_time NOT LIKE 'Final%'
ORDER BY scheduled_at, id
LIMIT $1
`

func (q *Queries) ListUpcomingGames(ctx context.Context, limit int32) ([]Game, error) {
	rows, err := q.db.Query(ctx, listUpcomingGames, limit)
	if err != nil {
		return nil, err
	}
	return scanGames(rows)
}

const listOddsForGames = `-- name: ListOddsForGames :many
SELECT game_id, book_name, home_team_odds, away_team_odds,
  home_team_odds_trend, away_team_odds_trend,
  home_team_opening_odds, away_team_opening_odds
FROM game_odds
WHERE game_id = ANY($1::uuid[])
ORDER BY game_id, book_name
`

func (q *Queries) ListOddsForGames(ctx context.Context, gameIds []uuid.UUID) ([]GameOdd, error) {
	rows, err := q.db.Query(ctx, listOddsForGames, gameIds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GameOdd
	for rows.Next() {
		var i GameOdd
		if err := rows.Scan(
			&i.GameID,
			&i.BookName,
			&i.HomeTeamOdds,
			&i.AwayTeamOdds,
			&i.HomeTeamOddsTrend,
			&i.AwayTeamOddsTrend,
			&i.HomeTeamOpeningOdds,
			&i.AwayTeamOpeningOdds,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertGame = `-- name: UpsertGame :exec
INSERT INTO games (
  id, source_key, league, home_team_name, away_team_name,
  home_team_score, away_team_score, start_time, scheduled_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (id) DO UPDATE SET
  league          = EXCLUDED.league,
  home_team_name  = EXCLUDED.home_team_name,
  away_team_name  = EXCLUDED.away_team_name,
  home_team_score = EXCLUDED.home_team_score,
  away_team_score = EXCLUDED.away_team_score,
  start_time      = EXCLUDED.start_time,
  scheduled_at    = EXCLUDED.scheduled_at,
  updated_at      = now()
`

type UpsertGameParams struct {
	ID            uuid.UUID `json:"id"`
	SourceKey     string    `json:"source_key"`
	League        string    `json:"league"`
	HomeTeamName  string    `json:"home_team_name"`
	AwayTeamName  string    `json:"away_team_name"`
	HomeTeamScore string    `json:"home_team_score"`
	AwayTeamScore string    `json:"away_team_score"`
	StartTime     string    `json:"start_time"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

func (q *Queries) UpsertGame(ctx context.Context, arg UpsertGameParams) error {
	_, err := q.db.Exec(ctx, upsertGame,
		arg.ID,
		arg.SourceKey,
		arg.League,
		arg.HomeTeamName,
		arg.AwayTeamName,
		arg.HomeTeamScore,
		arg.AwayTeamScore,
		arg.StartTime,
		arg.ScheduledAt,
	)
	return err
}

const upsertGameOdd = `-- name: UpsertGameOdd :exec
INSERT INTO game_odds (
  game_id, book_name, home_team_odds, away_team_odds,
  home_team_odds_trend, away_team_odds_trend,
  home_team_opening_odds, away_team_opening_odds, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (game_id, book_name) DO UPDATE SET
  home_team_odds         = EXCLUDED.home_team_odds,
  away_team_odds         = EXCLUDED.away_team_odds,
  home_team_odds_trend   = EXCLUDED.home_team_odds_trend,
  away_team_odds_trend   = EXCLUDED.away_team_odds_trend,
  home_team_opening_odds = EXCLUDED.home_team_opening_odds,
  away_team_opening_odds = EXCLUDED.away_team_opening_odds,
  updated_at             = now()
`

func (q *Queries) UpsertGameOdd(ctx context.Context, arg GameOdd) error {
	_, err := q.db.Exec(ctx, upsertGameOdd,
		arg.GameID,
		arg.BookName,
		arg.HomeTeamOdds,
		arg.AwayTeamOdds,
		arg.HomeTeamOddsTrend,
		arg.AwayTeamOddsTrend,
		arg.HomeTeamOpeningOdds,
		arg.AwayTeamOpeningOdds,
	)
	return err
}
