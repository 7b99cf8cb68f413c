package seedmanager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardkeeper/shardkeeper/internal/catalog"
)

func TestWantedFilenames_SeedAllIgnoresFiles(t *testing.T) {
	t2 := &catalog.TorrentRecord{IsSeedAll: true, Files: []catalog.TorrentFileRecord{{Filename: "x.pdf"}}}
	wanted, skip := wantedFilenames(t2)
	require.False(t, skip)
	require.Empty(t, wanted)
}

func TestWantedFilenames_TargetedEmptySkips(t *testing.T) {
	t2 := &catalog.TorrentRecord{IsSeedAll: false}
	_, skip := wantedFilenames(t2)
	require.True(t, skip)
}

func TestWantedFilenames_TargetedSortsBasenames(t *testing.T) {
	t2 := &catalog.TorrentRecord{Files: []catalog.TorrentFileRecord{
		{Filename: "b.pdf"}, {Filename: "a.pdf"},
	}}
	wanted, skip := wantedFilenames(t2)
	require.False(t, skip)
	require.Equal(t, []string{"a.pdf", "b.pdf"}, wanted)
}

func TestSameWanted(t *testing.T) {
	require.True(t, sameWanted([]string{"a", "b"}, []string{"a", "b"}))
	require.False(t, sameWanted([]string{"a"}, []string{"a", "b"}))
	require.False(t, sameWanted([]string{"a", "b"}, []string{"a", "c"}))
}

func TestSortedCIDs_CIDv1First(t *testing.T) {
	out := sortedCIDs([]string{"QmA", "bafkA", "bafkB", "QmB"})
	require.Equal(t, []string{"bafkA", "bafkB", "QmA", "QmB"}, out)
}

func TestBasename(t *testing.T) {
	require.Equal(t, "book.pdf", basename("sub/dir/book.pdf"))
	require.Equal(t, "book.pdf", basename("book.pdf"))
}
