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

package migrations

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersionEmbedded(t *testing.T) {
	v, err := LatestVersion(migrationFiles)
	require.NoError(t, err)
	assert.Equal(t, uint(1760000000), v)
}

func TestLatestVersion(t *testing.T) {
	files := fstest.MapFS{
		"1_initial.up.sql":      {Data: []byte("SELECT 1;")},
		"1_initial.down.sql":    {Data: []byte("SELECT 1;")},
		"12_more.up.sql":        {Data: []byte("SELECT 1;")},
		"notes.txt":             {Data: []byte("ignore me")},
		"abc_not_a_version.sql": {Data: []byte("SELECT 1;")},
	}

	v, err := LatestVersion(files)
	require.NoError(t, err)
	assert.Equal(t, uint(12), v)
}

func TestLatestVersionNoMigrations(t *testing.T) {
	_, err := LatestVersion(fstest.MapFS{"readme.md": {Data: []byte("x")}})
	assert.Error(t, err)
}

func TestCheckVersionSkipDoesNotTouchDatabase(t *testing.T) {
	require.NoError(t, CheckVersion(context.Background(), nil, CheckModeSkip))
}
