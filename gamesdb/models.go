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
	"strings"
	"time"

	"github.com/google/uuid"
)

// gameNamespace seeds deterministic game ids derived from source keys.
var gameNamespace = uuid.MustParse("4f1c2b7e-9a53-4c1e-8d0a-6b2f5e3c9d71")

// GameID returns the stable id for a game identified by sourceKey.
func GameID(sourceKey string) uuid.UUID {
	return uuid.NewSHA1(gameNamespace, []byte(sourceKey))
}

type Game struct {
	ID            uuid.UUID `json:"id"`
	SourceKey     string    `json:"source_key"`
	League        string    `json:"league"`
	HomeTeamName  string    `json:"home_team_name"`
	AwayTeamName  string    `json:"away_team_name"`
	HomeTeamScore string    `json:"home_team_score"`
	AwayTeamScore string    `json:"away_team_score"`
	StartTime     string    `json:"start_time"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsFinal reports whether the game has finished.
func (g Game) IsFinal() bool {
	return strings.HasPrefix(g.StartTime, "Final")
}

type GameOdd struct {
	GameID              uuid.UUID `json:"-"`
	BookName            string    `json:"book_name"`
	HomeTeamOdds        int32     `json:"home_team_odds"`
	AwayTeamOdds        int32     `json:"away_team_odds"`
	HomeTeamOddsTrend   string    `json:"home_team_odds_trend"`
	AwayTeamOddsTrend   string    `json:"away_team_odds_trend"`
	HomeTeamOpeningOdds int32     `json:"home_team_opening_odds"`
	AwayTeamOpeningOdds int32     `json:"away_team_opening_odds"`
}

// GameWithOdds is a game together with every bookmaker line known for it.
type GameWithOdds struct {
	Game
	Odds []GameOdd `json:"odds"`
}

type HistoryFile struct {
	Path        string    `json:"path"`
	ContentHash int64     `json:"content_hash"`
	GameCount   int32     `json:"game_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}
