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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cardinalhq/sportsrunner/gamesdb"
)

// HistoryDocument is the content of one history file.
type HistoryDocument struct {
	Games []HistoryGame `json:"games"`
}

type HistoryGame struct {
	SourceKey     string        `json:"source_key"`
	League        string        `json:"league"`
	HomeTeamName  string        `json:"home_team_name"`
	AwayTeamName  string        `json:"away_team_name"`
	HomeTeamScore string        `json:"home_team_score"`
	AwayTeamScore string        `json:"away_team_score"`
	StartTime     string        `json:"start_time"`
	ScheduledAt   time.Time     `json:"scheduled_at"`
	Odds          []HistoryOdds `json:"odds"`
}

type HistoryOdds struct {
	BookName            string `json:"book_name"`
	HomeTeamOdds        int32  `json:"home_team_odds"`
	AwayTeamOdds        int32  `json:"away_team_odds"`
	HomeTeamOddsTrend   string `json:"home_team_odds_trend"`
	AwayTeamOddsTrend   string `json:"away_team_odds_trend"`
	HomeTeamOpeningOdds int32  `json:"home_team_opening_odds"`
	AwayTeamOpeningOdds int32  `json:"away_team_opening_odds"`
}

// Key returns the source key, deriving one from league, date and teams when absent.
func (g HistoryGame) Key() string {
	if g.SourceKey != "" {
		return g.SourceKey
	}
	return fmt.Sprintf("%s:%s:%s@%s",
		strings.ToLower(g.League),
		g.ScheduledAt.UTC().Format("2006-01-02"),
		g.AwayTeamName,
		g.HomeTeamName)
}

func (g HistoryGame) validate() error {
	if g.HomeTeamName == "" || g.AwayTeamName == "" {
		return fmt.Errorf("game %q is missing a team name", g.Key())
	}
	if g.ScheduledAt.IsZero() {
		return fmt.Errorf("game %q has no scheduled_at", g.Key())
	}
	for _, o := range g.Odds {
		if o.BookName == "" {
			return fmt.Errorf("game %q has odds without a book_name", g.Key())
		}
	}
	return nil
}

// ParseHistory decodes a history file body.
func ParseHistory(b []byte) (HistoryDocument, error) {
	var doc HistoryDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return HistoryDocument{}, fmt.Errorf("failed to decode history: %w", err)
	}
	for _, g := range doc.Games {
		if err := g.validate(); err != nil {
			return HistoryDocument{}, err
		}
	}
	return doc, nil
}

// ingestParams turns a parsed document into the rows written for path.
// Later entries for the same game or bookmaker win.
func ingestParams(path string, hash int64, doc HistoryDocument) gamesdb.IngestHistoryFileParams {
	params := gamesdb.IngestHistoryFileParams{
		Path:        path,
		ContentHash: hash,
	}

	gameIdx := map[string]int{}
	oddsIdx := map[string]int{}
	for _, g := range doc.Games {
		key := g.Key()
		id := gamesdb.GameID(key)
		row := gamesdb.UpsertGameParams{
			ID:            id,
			SourceKey:     key,
			League:        g.League,
			HomeTeamName:  g.HomeTeamName,
			AwayTeamName:  g.AwayTeamName,
			HomeTeamScore: g.HomeTeamScore,
			AwayTeamScore: g.AwayTeamScore,
			StartTime:     g.StartTime,
			ScheduledAt:   g.ScheduledAt.UTC(),
		}
		if i, ok := gameIdx[key]; ok {
			params.Games[i] = row
		} else {
			gameIdx[key] = len(params.Games)
			params.Games = append(params.Games, row)
		}

		for _, o := range g.Odds {
			odd := gamesdb.GameOdd{
				GameID:              id,
				BookName:            o.BookName,
				HomeTeamOdds:        o.HomeTeamOdds,
				AwayTeamOdds:        o.AwayTeamOdds,
				HomeTeamOddsTrend:   o.HomeTeamOddsTrend,
				AwayTeamOddsTrend:   o.AwayTeamOddsTrend,
				HomeTeamOpeningOdds: o.HomeTeamOpeningOdds,
				AwayTeamOpeningOdds: o.AwayTeamOpeningOdds,
			}
			oddKey := key + "\x00" + o.BookName
			if i, ok := oddsIdx[oddKey]; ok {
				params.Odds[i] = odd
			} else {
				oddsIdx[oddKey] = len(params.Odds)
				params.Odds = append(params.Odds, odd)
			}
		}
	}
	return params
}
