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

package gamesdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/sportsrunner/gamesdb"
	"github.com/cardinalhq/sportsrunner/testhelpers"
)

func TestIngestAndListGames(t *testing.T) {
	pool, _ := testhelpers.SetupTestDB(t)
	store := gamesdb.NewStore(pool)
	ctx := context.Background()

	tip := time.Date(2025, 11, 2, 0, 30, 0, 0, time.UTC)
	final := gamesdb.UpsertGameParams{
		ID: gamesdb.GameID("nba:1"), SourceKey: "nba:1", League: "nba",
		HomeTeamName: "Celtics", AwayTeamName: "Lakers",
		HomeTeamScore: "110", AwayTeamScore: "101",
		StartTime: "Final", ScheduledAt: tip,
	}
	upcoming := gamesdb.UpsertGameParams{
		ID: gamesdb.GameID("nba:2"), SourceKey: "nba:2", League: "nba",
		HomeTeamName: "Knicks", AwayTeamName: "Heat",
		StartTime: "7:30 PM ET", ScheduledAt: tip.Add(24 * time.Hour),
	}

	err := store.IngestHistoryFile(ctx, gamesdb.IngestHistoryFileParams{
		Path:        "/data/history/week1.json",
		ContentHash: 42,
		Games:       []gamesdb.UpsertGameParams{final, upcoming},
		Odds: []gamesdb.GameOdd{
			{GameID: final.ID, BookName: "fanduel", HomeTeamOdds: -150, AwayTeamOdds: 130},
			{GameID: upcoming.ID, BookName: "fanduel", HomeTeamOdds: 110, AwayTeamOdds: -130},
		},
	})
	require.NoError(t, err)

	hash, ok, err := store.HistoryFileHash(ctx, "/data/history/week1.json")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), hash)

	_, ok, err = store.HistoryFileHash(ctx, "/data/history/missing.json")
	require.NoError(t, err)
	assert.False(t, ok)

	games, err := store.ListGamesWithOdds(ctx, gamesdb.ListGamesParams{Since: tip.Add(-time.Hour), Limit: 10})
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "Celtics", games[0].HomeTeamName)
	require.Len(t, games[0].Odds, 1)
	assert.Equal(t, int32(-150), games[0].Odds[0].HomeTeamOdds)

	upcomingGames, err := store.ListUpcomingGames(ctx, 10)
	require.NoError(t, err)
	require.Len(t, upcomingGames, 1)
	assert.Equal(t, "Knicks", upcomingGames[0].HomeTeamName)

	// Re-ingesting updates in place.
	final.HomeTeamScore = "111"
	require.NoError(t, store.IngestHistoryFile(ctx, gamesdb.IngestHistoryFileParams{
		Path: "/data/history/week1.json", ContentHash: 43, Games: []gamesdb.UpsertGameParams{final},
	}))
	games, err = store.ListGamesWithOdds(ctx, gamesdb.ListGamesParams{Since: tip.Add(-time.Hour), Limit: 10})
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "111", games[0].HomeTeamScore)
}

func TestIngestRollsBackOnFailure(t *testing.T) {
	pool, _ := testhelpers.SetupTestDB(t)
	store := gamesdb.NewStore(pool)
	ctx := context.Background()

	g := gamesdb.UpsertGameParams{
		ID: gamesdb.GameID("nba:rollback"), SourceKey: "nba:rollback",
		HomeTeamName: "Bulls", AwayTeamName: "Nets", ScheduledAt: time.Now().UTC(),
	}
	err := store.IngestHistoryFile(ctx, gamesdb.IngestHistoryFileParams{
		Path:  "/data/history/bad.json",
		Games: []gamesdb.UpsertGameParams{g},
		// Odds for a game that does not exist violate the foreign key.
		Odds: []gamesdb.GameOdd{{GameID: gamesdb.GameID("nope"), BookName: "x"}},
	})
	require.Error(t, err)

	_, ok, err := store.HistoryFileHash(ctx, "/data/history/bad.json")
	require.NoError(t, err)
	assert.False(t, ok)

	upcoming, err := store.ListUpcomingGames(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, upcoming)
	assert.Equal(t, int32(0), pool.Stats().Acquired)
}
