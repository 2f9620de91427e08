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
)

const getHistoryFile = `-- name: GetHistoryFile :one
SELECT path, content_hash, game_count, ingested_at
FROM history_files
WHERE path = $1
`

func (q *Queries) GetHistoryFile(ctx context.Context, path string) (HistoryFile, error) {
	row := q.db.QueryRow(ctx, getHistoryFile, path)
	var i HistoryFile
	err := row.Scan(
		&i.Path,
		&i.ContentHash,
		&i.GameCount,
		&i.IngestedAt,
	)
	return i, err
}

const recordHistoryFile = `-- name: RecordHistoryFile :exec
INSERT INTO history_files (path, content_hash, game_count, ingested_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (path) DO UPDATE SET
  content_hash = EXCLUDED.content_hash,
  game_count   = EXCLUDED.game_count,
  ingested_at  = now()
`

type RecordHistoryFileParams struct {
	Path        string `json:"path"`
	ContentHash int64  `json:"content_hash"`
	GameCount   int32  `json:"game_count"`
}

func (q *Queries) RecordHistoryFile(ctx context.Context, arg RecordHistoryFileParams) error {
	_, err := q.db.Exec(ctx, recordHistoryFile, arg.Path, arg.ContentHash, arg.GameCount)
	return err
}
