// Package extractor orchestrates framing (C1), the piece planner (C2), and
// the torrent driver (C3) to produce a single embedded file's bytes given a
// catalog FileRecord's torrent reference and byte offset, per spec §4.4.
package extractor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shardkeeper/shardkeeper/internal/catalog"
	"github.com/shardkeeper/shardkeeper/internal/framing"
	"github.com/shardkeeper/shardkeeper/internal/planner"
	"github.com/shardkeeper/shardkeeper/internal/sidecar"
	"github.com/shardkeeper/shardkeeper/internal/torrentdriver"
)

// Driver is the subset of *torrentdriver.Driver the extractor's piece-level
// fallback needs. Narrowed to an interface so it can be exercised against a
// fake in tests without a live BitTorrent session.
type Driver interface {
	WaitMetadata(ctx context.Context, h *torrentdriver.Handle) error
	PieceLength(h *torrentdriver.Handle) int64
	NumPieces(h *torrentdriver.Handle) int
	PiecePriority(h *torrentdriver.Handle, index int, p int) error
	ReadPiece(ctx context.Context, h *torrentdriver.Handle, index int) ([]byte, error)
	TorrentFiles(h *torrentdriver.Handle) []torrentdriver.FileInfo
}

// HandleSource resolves a torrent_id to its live driver handle, if the
// session currently has one — normally backed by the seed manager's
// in-memory SessionTorrent map (spec §4.5).
type HandleSource interface {
	Handle(torrentID int64) (*torrentdriver.Handle, bool)
}

// TorrentFileFetcher fetches a .torrent file's bytes from the upstream
// repository when no cached copy exists locally (the C7 collaborator).
type TorrentFileFetcher interface {
	FetchTorrentFile(ctx context.Context, path string) ([]byte, error)
}

// Extractor ties the pieces together. DownloadsRoot mirrors spec §6.1's
// on-disk layout: "<infohash>.torrent", "<infohash>_byteoffsets.json", and
// the torrent's own payload tree all live under it.
type Extractor struct {
	Store           *catalog.Store
	Driver          Driver
	Handles         HandleSource
	Fetcher         TorrentFileFetcher // may be nil; tier 2 then only uses a local cache
	DownloadsRoot   string
	MetadataTimeout time.Duration
}

func (e *Extractor) metadataTimeout() time.Duration {
	if e.MetadataTimeout > 0 {
		return e.MetadataTimeout
	}
	return 60 * time.Second
}

func (e *Extractor) torrentFilePath(infoHash string) string {
	return filepath.Join(e.DownloadsRoot, infoHash+".torrent")
}

// Extract produces f's payload bytes, trying the fast sidecar path, then a
// .torrent-metadata-derived path, then falling back to piece-level download.
func (e *Extractor) Extract(ctx context.Context, f *catalog.FileRecord) (name string, data []byte, err error) {
	jobID := uuid.New().String()
	log.Printf("[extractor] job=%s extracting md5=%s", jobID, f.MD5)
	defer func() {
		if err != nil {
			log.Printf("[extractor] job=%s failed: %v", jobID, err)
		}
	}()

	if f.TorrentID == nil {
		return "", nil, &PreconditionViolated{Reason: "file has no torrent_id"}
	}
	if f.Byteoffset == nil {
		return "", nil, &PreconditionViolated{Reason: "file has no byteoffset"}
	}

	t, err := e.Store.GetTorrent(ctx, *f.TorrentID)
	if err != nil {
		return "", nil, &TorrentNotFound{TorrentID: *f.TorrentID}
	}

	infoHash, err := infoHashFromMagnet(t.MagnetLink)
	if err != nil {
		return "", nil, &PreconditionViolated{Reason: "torrent has no usable magnet_link: " + err.Error()}
	}

	offset := *f.Byteoffset

	// Tier 1: sidecar fast path.
	sc, err := sidecar.Load(e.DownloadsRoot, infoHash)
	if err != nil {
		return "", nil, &IOError{Op: "load sidecar", Err: err}
	}
	if entry, ok := sc.Lookup(offset); ok {
		archivePath := filepath.Join(e.DownloadsRoot, entry.Path)
		if _, statErr := os.Stat(archivePath); statErr == nil {
			return extractFromFile(archivePath, offset-entry.StartOffset)
		}
	}

	// Tier 2: derive the entry from cached or fetched .torrent metadata.
	torrentBytes, err := e.loadOrFetchTorrentFile(ctx, infoHash, t)
	if err == nil {
		files, ferr := torrentdriver.FilesFromTorrentBytes(torrentBytes)
		if ferr == nil {
			if fi, ok := torrentdriver.FileContainingOffset(files, offset); ok {
				archivePath := filepath.Join(e.DownloadsRoot, fi.Path)
				if _, statErr := os.Stat(archivePath); statErr == nil {
					name, data, err = extractFromFile(archivePath, offset-fi.Offset)
					if err == nil {
						e.rememberSidecarEntry(infoHash, offset, sidecar.Entry{Path: fi.Path, StartOffset: fi.Offset})
						return name, data, nil
					}
				}
			}
		}
	}

	// Tier 3: piece-level fallback via the live BitTorrent session.
	log.Printf("[extractor] job=%s falling back to piece-level extraction", jobID)
	return e.extractViaPieces(ctx, t, infoHash, offset)
}

func (e *Extractor) loadOrFetchTorrentFile(ctx context.Context, infoHash string, t *catalog.TorrentRecord) ([]byte, error) {
	path := e.torrentFilePath(infoHash)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	if e.Fetcher == nil {
		return nil, fmt.Errorf("extractor: no cached .torrent for %s and no fetcher configured", infoHash)
	}
	data, err := e.Fetcher.FetchTorrentFile(ctx, t.Path)
	if err != nil {
		return nil, &IOError{Op: "fetch torrent file", Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err == nil {
		os.Rename(tmp, path)
	}
	return data, nil
}

func (e *Extractor) rememberSidecarEntry(infoHash string, offset int64, entry sidecar.Entry) {
	m, err := sidecar.Load(e.DownloadsRoot, infoHash)
	if err != nil {
		return
	}
	m.Put(offset, entry)
	sidecar.Save(e.DownloadsRoot, infoHash, m)
}

func (e *Extractor) extractViaPieces(ctx context.Context, t *catalog.TorrentRecord, infoHash string, offset int64) (string, []byte, error) {
	if e.Driver == nil || e.Handles == nil {
		return "", nil, &TorrentNotFound{TorrentID: t.ID}
	}
	h, ok := e.Handles.Handle(t.ID)
	if !ok {
		return "", nil, &TorrentNotFound{TorrentID: t.ID}
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.metadataTimeout())
	defer cancel()
	if err := e.Driver.WaitMetadata(waitCtx, h); err != nil {
		return "", nil, err
	}

	pieceLength := e.Driver.PieceLength(h)
	numPieces := int64(e.Driver.NumPieces(h))

	priorities := planner.ZeroedPriorities(int(numPieces))
	leading := planner.LeadingPieces(offset, pieceLength, numPieces)
	planner.RaisePriority(priorities, leading)
	for i, p := range priorities {
		e.Driver.PiecePriority(h, i, p)
	}

	pieces := make(map[int64][]byte, len(leading))
	for _, idx := range leading {
		data, err := e.Driver.ReadPiece(ctx, h, int(idx))
		if err != nil {
			return "", nil, &IOError{Op: fmt.Sprintf("read piece %d", idx), Err: err}
		}
		pieces[idx] = data
	}

	firstPieceStart := planner.PieceStart(leading[0], pieceLength)
	var buf []byte
	for _, idx := range leading {
		buf = append(buf, pieces[idx]...)
	}

	hdr, err := framing.FindHeader(buf, firstPieceStart, offset)
	if err != nil {
		return "", nil, err
	}
	_, dataEnd := framing.PayloadBounds(hdr, firstPieceStart)
	lastPiece := planner.LastPiece(dataEnd, pieceLength)

	trailing := planner.TrailingPieces(leading, lastPiece)
	for _, idx := range trailing {
		e.Driver.PiecePriority(h, int(idx), planner.PriorityHigh)
		data, err := e.Driver.ReadPiece(ctx, h, int(idx))
		if err != nil {
			return "", nil, &IOError{Op: fmt.Sprintf("read piece %d", idx), Err: err}
		}
		pieces[idx] = data
	}

	order := append(append([]int64(nil), leading...), trailing...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	// hdr.InBuf counts from firstPieceStart, so Decode gets the buffer from there.
	payload := planner.AssemblePayload(pieces, order, firstPieceStart, firstPieceStart, dataEnd)
	name, data, err := framing.Decode(payload, hdr, firstPieceStart)
	if err != nil {
		return "", nil, fmt.Errorf("extractor: decode: %w", err)
	}

	if files := e.Driver.TorrentFiles(h); len(files) > 0 {
		if fi, ok := torrentdriver.FileContainingOffset(files, offset); ok {
			e.rememberSidecarEntry(infoHash, offset, sidecar.Entry{Path: fi.Path, StartOffset: fi.Offset})
		}
	}

	return name, data, nil
}
