package watchfolder

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/require"
)

// buildTorrentBytes constructs a minimal but valid .torrent file with a
// preserved raw info dict, the same shape torrentdriver.InfoHashFromTorrentBytes
// and AddTorrentFile require.
func buildTorrentBytes(t *testing.T, name string) []byte {
	t.Helper()
	infoBytes, err := bencode.Marshal(metainfo.Info{Name: name, Length: 1024, PieceLength: 256})
	require.NoError(t, err)

	mi := metainfo.MetaInfo{Announce: "http://tracker.example/announce"}
	mi.InfoBytes = infoBytes

	data, err := bencode.Marshal(mi)
	require.NoError(t, err)
	return data
}

type fakeAdder struct {
	mu    sync.Mutex
	calls []struct{ path, infoHash string }
}

func (f *fakeAdder) AddExternal(ctx context.Context, path, infoHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct{ path, infoHash string }{path, infoHash})
	return nil
}

func (f *fakeAdder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestWatcher_RegistersDroppedTorrentFile(t *testing.T) {
	dir := t.TempDir()
	adder := &fakeAdder{}

	w, err := New(dir, adder)
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	data := buildTorrentBytes(t, "shard.zip")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dropped.torrent"), data, 0644))

	require.Eventually(t, func() bool {
		return adder.callCount() == 1
	}, 3*time.Second, 20*time.Millisecond)

	adder.mu.Lock()
	defer adder.mu.Unlock()
	require.Equal(t, "dropped.torrent", adder.calls[0].path)
	require.Len(t, adder.calls[0].infoHash, 40)
}

func TestWatcher_IgnoresNonTorrentFiles(t *testing.T) {
	dir := t.TempDir()
	adder := &fakeAdder{}

	w, err := New(dir, adder)
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))

	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 0, adder.callCount())
}
