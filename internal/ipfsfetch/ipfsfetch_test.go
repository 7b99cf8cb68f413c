package ipfsfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetch_SuccessWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ipfs/bafkreiabc", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("blob contents"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), ".ipfs.bafkreiabc")
	f := New()
	require.NoError(t, f.Fetch(context.Background(), srv.URL, "bafkreiabc", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "blob contents", string(data))
}

func TestFetch_NonOKStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), ".ipfs.missing")
	f := New()
	err := f.Fetch(context.Background(), srv.URL, "missing", dest)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	require.True(t, os.IsNotExist(statErr))
}
