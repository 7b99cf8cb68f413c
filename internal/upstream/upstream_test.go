package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/torrents/index.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"path":"a.torrent","magnet_link":"magnet:?xt=urn:btih:aaaa","data_size":100,"num_files":1}]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	entries, err := c.FetchIndex(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a.torrent", entries[0].Path)
	require.Equal(t, int64(100), entries[0].DataSize)
}

func TestFetchTorrentFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/archive/shard.torrent", r.URL.Path)
		w.Write([]byte("d8:announce...e"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	data, err := c.FetchTorrentFile(context.Background(), "archive/shard.torrent")
	require.NoError(t, err)
	require.Equal(t, []byte("d8:announce...e"), data)
}

func TestFetchTorrentFile_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.FetchTorrentFile(context.Background(), "missing.torrent")
	require.Error(t, err)
}
