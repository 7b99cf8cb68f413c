package extractor

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shardkeeper/shardkeeper/internal/catalog"
	"github.com/shardkeeper/shardkeeper/internal/sidecar"
	"github.com/shardkeeper/shardkeeper/internal/torrentdriver"
)

const (
	zipLocalFileHeaderSig = 0x04034b50
	zipLocalHeaderFixed   = 30
	zipMethodStored       = 0
)

func buildZIPEntry(t *testing.T, name string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := make([]byte, zipLocalHeaderFixed)
	binary.LittleEndian.PutUint32(hdr[0:4], zipLocalFileHeaderSig)
	binary.LittleEndian.PutUint16(hdr[8:10], zipMethodStored)
	binary.LittleEndian.PutUint32(hdr[18:22], uint32(len(payload)))
	binary.LittleEndian.PutUint16(hdr[26:28], uint16(len(name)))
	buf.Write(hdr)
	buf.WriteString(name)
	buf.Write(payload)
	return buf.Bytes()
}

func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	s, err := catalog.Open(catalog.Config{Source: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExtract_SidecarFastPath(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t)
	ctx := context.Background()

	const magnet = "magnet:?xt=urn:btih:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	torrentID, err := s.UpsertTorrent(ctx, &catalog.TorrentRecord{Path: "x.torrent", MagnetLink: magnet})
	require.NoError(t, err)

	payload := []byte("hello from inside the zip\n")
	entry := buildZIPEntry(t, "book.epub", payload)

	// Put the entry at some offset within a larger archive file on disk.
	archive := make([]byte, 100)
	archive = append(archive, entry...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shard.zip"), archive, 0644))

	// The sidecar entry's StartOffset is the archive's base offset within the
	// torrent's logical byte stream; the fast path subtracts it from the
	// file's absolute byteoffset to get the position within shard.zip on disk.
	const archiveStartOffset = 5000
	payloadStart := int64(100) + zipLocalHeaderFixed + int64(len("book.epub"))
	offset := archiveStartOffset + payloadStart

	infoHash := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	m := sidecar.Map{}
	m.Put(offset, sidecar.Entry{Path: "shard.zip", StartOffset: archiveStartOffset})
	require.NoError(t, sidecar.Save(dir, infoHash, m))

	e := &Extractor{Store: s, DownloadsRoot: dir}
	f := &catalog.FileRecord{TorrentID: &torrentID, Byteoffset: &offset}

	name, data, err := e.Extract(ctx, f)
	require.NoError(t, err)
	require.Equal(t, "book.epub", name)
	require.Equal(t, payload, data)
}

func TestExtract_NoTorrentID(t *testing.T) {
	s := openTestStore(t)
	e := &Extractor{Store: s, DownloadsRoot: t.TempDir()}
	_, _, err := e.Extract(context.Background(), &catalog.FileRecord{})
	require.Error(t, err)
	var pv *PreconditionViolated
	require.ErrorAs(t, err, &pv)
}

func TestExtract_UnknownTorrent(t *testing.T) {
	s := openTestStore(t)
	e := &Extractor{Store: s, DownloadsRoot: t.TempDir()}
	offset := int64(10)
	missing := int64(999)
	_, _, err := e.Extract(context.Background(), &catalog.FileRecord{TorrentID: &missing, Byteoffset: &offset})
	require.Error(t, err)
	var nf *TorrentNotFound
	require.ErrorAs(t, err, &nf)
}

// fakeDriver and fakeHandles exercise the tier-3 piece-level fallback without
// a live BitTorrent session.
type fakeDriver struct {
	pieceLength int64
	numPieces   int
	pieces      map[int]([]byte)
	priorities  map[int]int
}

func (f *fakeDriver) WaitMetadata(ctx context.Context, h *torrentdriver.Handle) error { return nil }
func (f *fakeDriver) PieceLength(h *torrentdriver.Handle) int64                       { return f.pieceLength }
func (f *fakeDriver) NumPieces(h *torrentdriver.Handle) int                           { return f.numPieces }
func (f *fakeDriver) PiecePriority(h *torrentdriver.Handle, index int, p int) error {
	if f.priorities == nil {
		f.priorities = map[int]int{}
	}
	f.priorities[index] = p
	return nil
}
func (f *fakeDriver) ReadPiece(ctx context.Context, h *torrentdriver.Handle, index int) ([]byte, error) {
	return f.pieces[index], nil
}
func (f *fakeDriver) TorrentFiles(h *torrentdriver.Handle) []torrentdriver.FileInfo { return nil }

type fakeHandles struct {
	h *torrentdriver.Handle
}

func (f *fakeHandles) Handle(torrentID int64) (*torrentdriver.Handle, bool) {
	if f.h == nil {
		return nil, false
	}
	return f.h, true
}

func TestExtract_PieceLevelFallback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const magnet = "magnet:?xt=urn:btih:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	torrentID, err := s.UpsertTorrent(ctx, &catalog.TorrentRecord{Path: "y.torrent", MagnetLink: magnet})
	require.NoError(t, err)

	const pieceLength = 64
	payload := []byte("piece-fallback payload\n")
	entry := buildZIPEntry(t, "doc.txt", payload)

	// Place the entry's header right at the start of piece 1 (offset 64).
	padded := make([]byte, pieceLength)
	padded = append(padded, entry...)
	for len(padded)%pieceLength != 0 {
		padded = append(padded, 0)
	}

	pieces := map[int][]byte{}
	for i := 0; i*pieceLength < len(padded); i++ {
		end := (i + 1) * pieceLength
		if end > len(padded) {
			end = len(padded)
		}
		pieces[i] = padded[i*pieceLength : end]
	}

	offset := int64(pieceLength) + zipLocalHeaderFixed + int64(len("doc.txt"))

	driver := &fakeDriver{pieceLength: pieceLength, numPieces: len(pieces), pieces: pieces}
	handles := &fakeHandles{h: &torrentdriver.Handle{}}

	e := &Extractor{Store: s, DownloadsRoot: t.TempDir(), Driver: driver, Handles: handles}
	f := &catalog.FileRecord{TorrentID: &torrentID, Byteoffset: &offset}

	name, data, err := e.Extract(ctx, f)
	require.NoError(t, err)
	require.Equal(t, "doc.txt", name)
	require.Equal(t, payload, data)
}
