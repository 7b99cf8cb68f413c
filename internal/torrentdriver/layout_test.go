package torrentdriver

import (
	"testing"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/require"
)

func TestFilesFromInfoSingleFile(t *testing.T) {
	info := &metainfo.Info{Name: "shard.zip", Length: 4096}
	files := filesFromInfo(info)
	require.Equal(t, []FileInfo{{Path: "shard.zip", Offset: 0, Length: 4096}}, files)
}

func TestFilesFromInfoMultiFileOffsetsAccumulate(t *testing.T) {
	info := &metainfo.Info{
		Name: "archive",
		Files: []metainfo.FileInfo{
			{Path: []string{"a.txt"}, Length: 100},
			{Path: []string{"sub", "b.txt"}, Length: 200},
		},
	}
	files := filesFromInfo(info)
	require.Len(t, files, 2)
	require.Equal(t, int64(0), files[0].Offset)
	require.Equal(t, int64(100), files[0].Length)
	require.Equal(t, int64(100), files[1].Offset)
	require.Equal(t, int64(200), files[1].Length)
}

func TestFileContainingOffset(t *testing.T) {
	files := []FileInfo{
		{Path: "a", Offset: 0, Length: 100},
		{Path: "b", Offset: 100, Length: 50},
	}
	f, ok := FileContainingOffset(files, 120)
	require.True(t, ok)
	require.Equal(t, "b", f.Path)

	_, ok = FileContainingOffset(files, 1000)
	require.False(t, ok)
}
