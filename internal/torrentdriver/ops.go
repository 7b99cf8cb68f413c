package torrentdriver

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	tstorage "github.com/anacrolix/torrent/storage"
)

// AddMagnet adds a torrent by magnet URI; metadata arrives asynchronously,
// see WaitMetadata.
func (d *Driver) AddMagnet(magnetURI, dataDir string) (*Handle, error) {
	t, err := d.client.AddMagnet(magnetURI)
	if err != nil {
		return nil, fmt.Errorf("torrentdriver: add magnet: %w", err)
	}
	h := &Handle{t: t, infoHash: t.InfoHash(), magnet: magnetURI}
	d.track(h)
	return h, nil
}

// AddTorrentFile adds a torrent from a parsed .torrent file's raw bytes,
// storing downloaded data under dataDir. It refuses files whose raw info
// dictionary bytes were not preserved (see ErrNoInfoBytes) since re-deriving
// them would change the info hash peers expect.
func (d *Driver) AddTorrentFile(torrentBytes []byte, dataDir string) (*Handle, error) {
	var mi metainfo.MetaInfo
	if err := bencode.Unmarshal(torrentBytes, &mi); err != nil {
		return nil, fmt.Errorf("torrentdriver: parse torrent file: %w", err)
	}
	if len(mi.InfoBytes) == 0 {
		return nil, ErrNoInfoBytes
	}

	infoHash := mi.HashInfoBytes()

	var trackers [][]string
	if mi.Announce != "" {
		trackers = [][]string{{mi.Announce}}
	}

	spec := &torrent.TorrentSpec{
		InfoHash:  infoHash,
		InfoBytes: mi.InfoBytes,
		Trackers:  trackers,
	}
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("torrentdriver: create data dir: %w", err)
		}
		spec.Storage = tstorage.NewFile(dataDir)
	}

	t, _, err := d.client.AddTorrentSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("torrentdriver: add torrent: %w", err)
	}

	h := &Handle{t: t, infoHash: infoHash, torrentBytes: torrentBytes}
	d.track(h)
	return h, nil
}

// Remove drops a torrent, optionally deleting its downloaded data.
func (d *Driver) Remove(h *Handle, deleteFiles bool) error {
	if deleteFiles {
		for _, f := range h.t.Files() {
			if err := os.Remove(f.Path()); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("torrentdriver: remove file %s: %w", f.Path(), err)
			}
		}
	}
	h.t.Drop()
	d.untrack(h)
	return nil
}

// HasMetadata reports whether h's info dictionary has arrived, without blocking.
func (d *Driver) HasMetadata(h *Handle) bool {
	select {
	case <-h.t.GotInfo():
		return true
	default:
		return false
	}
}

// WaitMetadata blocks until metadata arrives or ctx is done, returning
// MetadataTimeout if ctx carries the spec's 60-second bound and it elapses
// first. Waiting (and choosing the bound) is the caller's responsibility
// (spec §4.3).
func (d *Driver) WaitMetadata(ctx context.Context, h *Handle) error {
	select {
	case <-h.t.GotInfo():
		return nil
	case <-ctx.Done():
		return &MetadataTimeout{InfoHash: h.InfoHash()}
	}
}

// priority maps the driver's 0..7 contract scale onto the two levels this
// system actually needs: "don't fetch" and "fetch now." Intermediate values
// are treated the same as 7; the engine itself only ever distinguishes none
// from urgent here.
func priority(p int) torrent.PiecePriority {
	if p <= 0 {
		return torrent.PiecePriorityNone
	}
	return torrent.PiecePriorityNow
}

// PrioritizeFiles sets a priority per file, in torrent file order.
func (d *Driver) PrioritizeFiles(h *Handle, priorities []int) error {
	files := h.t.Files()
	if len(priorities) != len(files) {
		return fmt.Errorf("torrentdriver: got %d priorities for %d files", len(priorities), len(files))
	}
	for i, f := range files {
		f.SetPriority(priority(priorities[i]))
	}
	return nil
}

// PiecePriority sets the priority of a single piece.
func (d *Driver) PiecePriority(h *Handle, index int, p int) error {
	h.t.Piece(index).SetPriority(priority(p))
	return nil
}

// HavePiece reports whether a piece has been fully downloaded and verified.
func (d *Driver) HavePiece(h *Handle, index int) bool {
	return h.t.PieceState(index).Complete
}

// ReadPiece blocks until piece index is available (or ctx ends), returning its
// raw bytes. The piece must already have priority > 0 or this will never
// complete — callers raise priority first (spec §4.2's planner does this).
func (d *Driver) ReadPiece(ctx context.Context, h *Handle, index int) ([]byte, error) {
	info := h.t.Info()
	if info == nil {
		return nil, fmt.Errorf("torrentdriver: read piece %d: metadata not available", index)
	}
	piece := info.Piece(index)

	r := h.t.NewReader()
	defer r.Close()
	r.SetReadahead(0)
	r.SetResponsive()
	if _, err := r.Seek(piece.Offset(), io.SeekStart); err != nil {
		return nil, fmt.Errorf("torrentdriver: seek piece %d: %w", index, err)
	}

	buf := make([]byte, piece.Length())
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := io.ReadFull(r, buf)
		done <- result{n, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("torrentdriver: read piece %d: %w", index, res.err)
		}
		return buf[:res.n], nil
	}
}

// Status returns a point-in-time snapshot of a torrent's progress.
func (d *Driver) Status(h *Handle) Status {
	stats := h.t.Stats()
	return Status{
		InfoHash:       h.InfoHash(),
		BytesCompleted: h.t.BytesCompleted(),
		BytesTotal:     h.t.Length(),
		NumPeers:       stats.ActivePeers,
		Seeding:        h.t.Seeding(),
		HasMetadata:    d.HasMetadata(h),
	}
}

// TorrentFiles returns the logical file layout of h.
func (d *Driver) TorrentFiles(h *Handle) []FileInfo {
	files := h.t.Files()
	out := make([]FileInfo, len(files))
	for i, f := range files {
		out[i] = FileInfo{Path: f.Path(), Offset: f.Offset(), Length: f.Length()}
	}
	return out
}

// FilesAtOffset returns the files (normally exactly one) whose byte range
// contains offset.
func (d *Driver) FilesAtOffset(h *Handle, offset int64) []FileInfo {
	return filesAtOffset(d.TorrentFiles(h), offset)
}

// filesAtOffset is the pure range-matching logic behind FilesAtOffset,
// factored out so it's testable without a live torrent handle.
func filesAtOffset(files []FileInfo, offset int64) []FileInfo {
	var out []FileInfo
	for _, f := range files {
		if offset >= f.Offset && offset < f.Offset+f.Length {
			out = append(out, f)
		}
	}
	return out
}

// PieceLength returns the torrent's fixed piece size.
func (d *Driver) PieceLength(h *Handle) int64 {
	return h.t.Info().PieceLength
}

// NumPieces returns the torrent's total piece count.
func (d *Driver) NumPieces(h *Handle) int {
	return h.t.NumPieces()
}

// Pause stops a torrent from uploading or downloading without dropping it.
func (d *Driver) Pause(h *Handle) {
	h.t.DisallowDataUpload()
	h.t.DisallowDataDownload()
}

// Resume re-enables upload and download on a paused torrent.
func (d *Driver) Resume(h *Handle) {
	h.t.AllowDataUpload()
	h.t.AllowDataDownload()
}

// ForceRecheck re-verifies all of a torrent's data against its piece hashes.
func (d *Driver) ForceRecheck(h *Handle) {
	h.t.VerifyData()
}

// SaveResumeData asynchronously persists h's resume sidecar; completion is
// reported on the next ProcessAlerts call, mirroring the original engine's
// save-resume-data alert.
func (d *Driver) SaveResumeData(h *Handle) {
	infoHash := h.InfoHash()
	path := d.ResumeFilePath(infoHash)
	go func() {
		err := writeResumeFile(path, &ResumeFile{
			InfoHash:     infoHash,
			Magnet:       h.magnet,
			TorrentBytes: h.torrentBytes,
		})
		d.resumeDone <- ResumeSaveResult{InfoHash: infoHash, Path: path, Err: err}
	}()
}

// RemoveResumeData deletes h's resume sidecar, if any.
func (d *Driver) RemoveResumeData(h *Handle) error {
	err := os.Remove(d.ResumeFilePath(h.InfoHash()))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ResumeDir exposes the configured resume sidecar directory, e.g. so startup
// code can enumerate it via filepath.Glob.
func (d *Driver) ResumeDir() string {
	return d.resumeDir
}
