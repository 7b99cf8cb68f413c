// Package torrentdriver is the thin contract wrapper over anacrolix/torrent
// described in spec §4.3: add/remove, metadata wait, per-file and per-piece
// priority, piece reads, resume data, and a polled completion queue standing
// in for the alert pump the original engine exposed.
//
// anacrolix/torrent is itself fully asynchronous (channels and blocking
// readers, not a libtorrent-style alert queue), so ProcessAlerts here drains
// a completion channel this package fills in from background goroutines —
// the same "one loop, polled every tick" shape the seed manager needs, built on
// top of the library's native concurrency instead of reproducing its alert
// plumbing.
package torrentdriver

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
)

// ResumeSaveResult reports the outcome of an asynchronous SaveResumeData call.
type ResumeSaveResult struct {
	InfoHash string
	Path     string
	Err      error
}

// Driver owns one anacrolix/torrent client and the bookkeeping spec §4.3
// requires on top of it.
type Driver struct {
	client    *torrent.Client
	resumeDir string

	mu      sync.RWMutex
	handles map[metainfo.Hash]*Handle

	resumeDone chan ResumeSaveResult
}

// New wraps an already-configured anacrolix/torrent client. resumeDir is
// where <infohash>.fastresume sidecars are written.
func New(cl *torrent.Client, resumeDir string) (*Driver, error) {
	if resumeDir != "" {
		if err := os.MkdirAll(resumeDir, 0755); err != nil {
			return nil, err
		}
	}
	return &Driver{
		client:     cl,
		resumeDir:  resumeDir,
		handles:    make(map[metainfo.Hash]*Handle),
		resumeDone: make(chan ResumeSaveResult, 64),
	}, nil
}

// Close drops every handle and closes the underlying client.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for hash, h := range d.handles {
		log.Printf("[torrentdriver] dropping %s on close", hash.HexString()[:12])
		h.t.Drop()
	}
	d.handles = make(map[metainfo.Hash]*Handle)
	d.client.Close()
	return nil
}

func (d *Driver) track(h *Handle) {
	d.mu.Lock()
	d.handles[h.infoHash] = h
	d.mu.Unlock()
}

func (d *Driver) untrack(h *Handle) {
	d.mu.Lock()
	delete(d.handles, h.infoHash)
	d.mu.Unlock()
}

// ProcessAlerts drains whatever background work has completed since the last
// call: resume-data saves in flight. The seed manager's reconciliation loop
// (spec §4.5) calls this once per tick before reading torrent status, mirroring
// how the original engine's alert pump had to run before status became
// trustworthy.
func (d *Driver) ProcessAlerts() []ResumeSaveResult {
	var out []ResumeSaveResult
	for {
		select {
		case r := <-d.resumeDone:
			out = append(out, r)
		default:
			return out
		}
	}
}

// ResumeFilePath returns the path a resume sidecar for infoHash is written to.
func (d *Driver) ResumeFilePath(infoHash string) string {
	return filepath.Join(d.resumeDir, infoHash+".fastresume")
}
