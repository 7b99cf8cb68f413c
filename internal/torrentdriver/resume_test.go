package torrentdriver

import (
	"path/filepath"
	"testing"

	"github.com/anacrolix/torrent"
	"github.com/stretchr/testify/require"
)

func TestWriteAndLoadResumeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abc123.fastresume")

	err := writeResumeFile(path, &ResumeFile{
		InfoHash:     "abc123",
		Magnet:       "magnet:?xt=urn:btih:abc123",
		TorrentBytes: []byte("not-really-bencode"),
	})
	require.NoError(t, err)

	loaded, err := LoadResumeFile(path)
	require.NoError(t, err)
	require.Equal(t, "abc123", loaded.InfoHash)
	require.Equal(t, "magnet:?xt=urn:btih:abc123", loaded.Magnet)
	require.Equal(t, []byte("not-really-bencode"), loaded.TorrentBytes)
}

func TestWriteResumeFileIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.fastresume")

	require.NoError(t, writeResumeFile(path, &ResumeFile{InfoHash: "one"}))
	require.NoError(t, writeResumeFile(path, &ResumeFile{InfoHash: "two"}))

	loaded, err := LoadResumeFile(path)
	require.NoError(t, err)
	require.Equal(t, "two", loaded.InfoHash)

	// no leftover tempfile
	_, err = LoadResumeFile(path + ".tmp")
	require.Error(t, err)
}

func TestPriorityMapping(t *testing.T) {
	require.Equal(t, torrent.PiecePriorityNone, priority(0))
	require.Equal(t, torrent.PiecePriorityNow, priority(7))
	require.Equal(t, torrent.PiecePriorityNow, priority(1))
}

func TestFilesAtOffset(t *testing.T) {
	files := []FileInfo{
		{Path: "a", Offset: 0, Length: 100},
		{Path: "b", Offset: 100, Length: 50},
	}
	require.Equal(t, []FileInfo{{Path: "a", Offset: 0, Length: 100}}, filesAtOffset(files, 0))
	require.Equal(t, []FileInfo{{Path: "a", Offset: 0, Length: 100}}, filesAtOffset(files, 99))
	require.Equal(t, []FileInfo{{Path: "b", Offset: 100, Length: 50}}, filesAtOffset(files, 100))
	require.Empty(t, filesAtOffset(files, 150))
}
