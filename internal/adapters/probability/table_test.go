package probability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/derby/internal/domain"
)

var sampleEntry = TableEntry{
	Scores: []uint8{10, 8, 8, 5, 5, 5},
	WinBps: []uint64{3000, 2100, 1900, 1000, 1000, 1000},
}

func TestTable_PermutedLanes(t *testing.T) {
	tbl, err := NewTable([]TableEntry{sampleEntry})
	require.NoError(t, err)

	got, err := tbl.WinProbabilities(context.Background(), domain.Scores{5, 10, 5, 8, 5, 8})
	require.NoError(t, err)
	assert.Equal(t, [domain.LaneCount]uint64{1000, 3000, 1000, 2100, 1000, 1900}, got)
}

func TestTable_Missing(t *testing.T) {
	tbl, err := NewTable([]TableEntry{sampleEntry})
	require.NoError(t, err)

	_, err = tbl.WinProbabilities(context.Background(), domain.Scores{1, 1, 1, 1, 1, 1})
	require.ErrorIs(t, err, domain.ErrProbabilityUnavailable)
	assert.Equal(t, domain.KindCollaborator, domain.KindOf(err))
}

func TestNewTable_BadEntry(t *testing.T) {
	_, err := NewTable([]TableEntry{{Scores: []uint8{1, 2}, WinBps: []uint64{5000, 5000}}})
	require.Error(t, err)
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	data := `entries:
  - scores: [10, 8, 8, 5, 5, 5]
    win_bps: [3000, 2100, 1900, 1000, 1000, 1000]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	tbl, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())

	got, err := tbl.WinProbabilities(context.Background(), domain.Scores{10, 8, 8, 5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, [domain.LaneCount]uint64{3000, 2100, 1900, 1000, 1000, 1000}, got)
}

func TestLoadTable_MissingFile(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
