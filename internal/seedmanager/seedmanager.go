// Package seedmanager implements the long-running reconciliation loop that
// keeps a live BitTorrent session in sync with the catalog's persisted
// "should be seeding" desired state (spec §4.5), drives completion
// bookkeeping, and opportunistically substitutes files fetched from an IPFS
// gateway before a piece re-check.
package seedmanager

import (
	"context"
	"log"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shardkeeper/shardkeeper/internal/catalog"
	"github.com/shardkeeper/shardkeeper/internal/torrentdriver"
)

// TorrentFetcher fetches a .torrent file's bytes from the upstream
// repository when a magnet add times out on metadata (the C7 collaborator).
type TorrentFetcher interface {
	FetchTorrentFile(ctx context.Context, path string) ([]byte, error)
}

// IPFSFetcher fetches one CID from one gateway, writing the body to destPath.
type IPFSFetcher interface {
	Fetch(ctx context.Context, gateway, cid, destPath string) error
}

// SessionTorrent pairs a catalog TorrentRecord with its live driver handle —
// the in-memory "actual set" spec §4.5 diffs the catalog's desired set
// against.
type SessionTorrent struct {
	Torrent       *catalog.TorrentRecord
	Handle        *torrentdriver.Handle
	Complete      bool
	IPFSProcessed bool
}

// Manager owns the BitTorrent session for the lifetime of one reconciliation
// loop. It adds, removes and rechecks torrents; the extractor also calls the
// same engine for piece priorities and piece reads on handles it borrows.
type Manager struct {
	Store           *catalog.Store
	Driver          *torrentdriver.Driver
	Fetcher         TorrentFetcher // may be nil: MetadataTimeout then has no fallback
	IPFS            IPFSFetcher    // may be nil: disables IPFS substitution
	DownloadsRoot   string
	IPFSGateways    []string
	MetadataTimeout time.Duration
	Period          time.Duration

	mu       sync.Mutex
	sessions map[int64]*SessionTorrent
}

func (m *Manager) metadataTimeout() time.Duration {
	if m.MetadataTimeout > 0 {
		return m.MetadataTimeout
	}
	return 60 * time.Second
}

func (m *Manager) period() time.Duration {
	if m.Period > 0 {
		return m.Period
	}
	return 10 * time.Second
}

// Handle implements extractor.HandleSource: it lets the extractor borrow a
// live handle for its piece-level fallback without owning the session
// itself.
func (m *Manager) Handle(torrentID int64) (*torrentdriver.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[torrentID]
	if !ok || st.Handle == nil {
		return nil, false
	}
	return st.Handle, true
}

// Start runs the reconciliation loop until ctx is cancelled, then performs
// the spec §5 shutdown sequence (save resume data, drain alerts ~2.5s).
func (m *Manager) Start(ctx context.Context) {
	log.Printf("[seedmanager] starting reconciliation loop (period=%s pid=%d)", m.period(), os.Getpid())
	m.mu.Lock()
	if m.sessions == nil {
		m.sessions = make(map[int64]*SessionTorrent)
	}
	m.mu.Unlock()

	ticker := time.NewTicker(m.period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-ticker.C:
			m.tick(context.Background())
		}
	}
}

func (m *Manager) shutdown() {
	log.Printf("[seedmanager] shutting down: saving resume data")
	m.mu.Lock()
	for _, st := range m.sessions {
		if st.Handle != nil {
			m.Driver.SaveResumeData(st.Handle)
		}
	}
	m.mu.Unlock()

	deadline := time.After(2500 * time.Millisecond)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			log.Printf("[seedmanager] shutdown complete")
			return
		case <-tick.C:
			m.Driver.ProcessAlerts()
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	desired, err := m.Store.ListSeeding(ctx)
	if err != nil {
		log.Printf("[seedmanager] list_seeding failed: %v", err)
		return
	}

	m.reconcile(ctx, desired)

	m.mu.Lock()
	sessions := make([]*SessionTorrent, 0, len(m.sessions))
	for _, st := range m.sessions {
		sessions = append(sessions, st)
	}
	m.mu.Unlock()

	m.Driver.ProcessAlerts()
	for _, st := range sessions {
		m.checkCompletion(ctx, st)
		m.tryIPFSSubstitution(ctx, st)
	}
}

// wantedFilenames returns the basenames start_torrent should select, and
// whether the torrent should be skipped entirely (empty targeted list).
func wantedFilenames(t *catalog.TorrentRecord) (files []string, skip bool) {
	if t.IsSeedAll {
		return nil, false
	}
	if len(t.Files) == 0 {
		return nil, true
	}
	out := make([]string, 0, len(t.Files))
	for _, f := range t.Files {
		out = append(out, f.Filename)
	}
	sort.Strings(out)
	return out, false
}

func sameWanted(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *Manager) reconcile(ctx context.Context, desired []*catalog.TorrentRecord) {
	m.mu.Lock()
	actual := make(map[int64]*SessionTorrent, len(m.sessions))
	for id, st := range m.sessions {
		actual[id] = st
	}
	m.mu.Unlock()

	desiredIDs := make(map[int64]bool, len(desired))
	for _, t := range desired {
		desiredIDs[t.ID] = true
		wanted, skip := wantedFilenames(t)
		if skip {
			continue
		}

		st, ok := actual[t.ID]
		if !ok {
			m.startTorrent(ctx, t, wanted)
			continue
		}

		liveWanted, _ := wantedFilenames(st.Torrent)
		if !sameWanted(wanted, liveWanted) {
			m.removeSession(st, false)
			m.startTorrent(ctx, t, wanted)
		}
	}

	for id, st := range actual {
		if !desiredIDs[id] {
			m.removeSession(st, false)
		}
	}
}

func (m *Manager) removeSession(st *SessionTorrent, deleteFiles bool) {
	if st.Handle != nil {
		if err := m.Driver.Remove(st.Handle, deleteFiles); err != nil {
			log.Printf("[seedmanager] remove torrent %d failed: %v", st.Torrent.ID, err)
		}
	}
	m.mu.Lock()
	delete(m.sessions, st.Torrent.ID)
	m.mu.Unlock()
}

// startTorrent implements spec §4.5's start_torrent policy: magnet first,
// falling back to a fetched .torrent file on MetadataTimeout.
func (m *Manager) startTorrent(ctx context.Context, t *catalog.TorrentRecord, wanted []string) {
	h, err := m.addAndWaitMetadata(ctx, t)
	if err != nil {
		log.Printf("[seedmanager] start_torrent %s failed: %v", t.Path, err)
		return
	}

	if len(wanted) > 0 {
		if err := m.selectWantedFiles(h, wanted); err != nil {
			log.Printf("[seedmanager] start_torrent %s: %v (fatal, removing)", t.Path, err)
			m.Driver.Remove(h, false)
			return
		}
	}

	m.mu.Lock()
	m.sessions[t.ID] = &SessionTorrent{Torrent: t, Handle: h}
	m.mu.Unlock()
	log.Printf("[seedmanager] started %s (seed_all=%v wanted=%d)", t.Path, t.IsSeedAll, len(wanted))
}

// addAndWaitMetadata first tries to restore t from an on-disk resume sidecar
// (spec §4.3/§4.5: resume data "lets the BitTorrent engine restart without
// re-hashing"), falling back to a fresh magnet add or .torrent fetch only if
// no sidecar exists or restoring from it fails.
func (m *Manager) addAndWaitMetadata(ctx context.Context, t *catalog.TorrentRecord) (*torrentdriver.Handle, error) {
	if h, ok := m.addFromResume(ctx, t); ok {
		return h, nil
	}

	if t.MagnetLink != "" {
		h, err := m.Driver.AddMagnet(t.MagnetLink, m.DownloadsRoot)
		if err == nil {
			waitCtx, cancel := context.WithTimeout(ctx, m.metadataTimeout())
			werr := m.Driver.WaitMetadata(waitCtx, h)
			cancel()
			if werr == nil {
				return h, nil
			}
			m.Driver.Remove(h, false)
			log.Printf("[seedmanager] %s: magnet metadata timed out, falling back to .torrent fetch", t.Path)
		}
	}

	if m.Fetcher == nil {
		return nil, &MetadataTimeout{Path: t.Path}
	}
	torrentBytes, err := m.Fetcher.FetchTorrentFile(ctx, t.Path)
	if err != nil {
		return nil, err
	}
	h, err := m.Driver.AddTorrentFile(torrentBytes, m.DownloadsRoot)
	if err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, m.metadataTimeout())
	defer cancel()
	if err := m.Driver.WaitMetadata(waitCtx, h); err != nil {
		m.Driver.Remove(h, false)
		return nil, err
	}
	return h, nil
}

// addFromResume attempts to re-add t from a <infohash>.fastresume sidecar
// left by a previous SaveResumeData call, skipping a fresh magnet add or
// .torrent fetch entirely when one is found. It reports ok=false (not an
// error) whenever no usable sidecar exists, so the caller can fall back to
// the normal add path.
func (m *Manager) addFromResume(ctx context.Context, t *catalog.TorrentRecord) (h *torrentdriver.Handle, ok bool) {
	infoHash, found := magnetInfoHash(t.MagnetLink)
	if !found {
		return nil, false
	}

	rf, err := torrentdriver.LoadResumeFile(m.Driver.ResumeFilePath(infoHash))
	if err != nil {
		return nil, false
	}

	switch {
	case len(rf.TorrentBytes) > 0:
		h, err = m.Driver.AddTorrentFile(rf.TorrentBytes, m.DownloadsRoot)
	case rf.Magnet != "":
		h, err = m.Driver.AddMagnet(rf.Magnet, m.DownloadsRoot)
	default:
		return nil, false
	}
	if err != nil {
		log.Printf("[seedmanager] %s: resume add failed, falling back: %v", t.Path, err)
		return nil, false
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.metadataTimeout())
	defer cancel()
	if err := m.Driver.WaitMetadata(waitCtx, h); err != nil {
		m.Driver.Remove(h, false)
		log.Printf("[seedmanager] %s: resume metadata wait failed, falling back: %v", t.Path, err)
		return nil, false
	}

	log.Printf("[seedmanager] %s: restored from resume data (%s)", t.Path, infoHash[:12])
	return h, true
}

// magnetInfoHash extracts the btih info hash from a magnet URI's xt
// parameter, lowercased to match Handle.InfoHash's hex encoding.
func magnetInfoHash(magnet string) (string, bool) {
	if magnet == "" {
		return "", false
	}
	u, err := url.Parse(magnet)
	if err != nil {
		return "", false
	}
	const prefix = "urn:btih:"
	for _, xt := range u.Query()["xt"] {
		if strings.HasPrefix(xt, prefix) {
			return strings.ToLower(strings.TrimPrefix(xt, prefix)), true
		}
	}
	return "", false
}

// AddExternal registers a torrent an operator dropped directly into
// downloads_root as a seed_all desired-state record (spec's watchfolder
// enrichment). infoHash is used only to build the magnet link; the catalog
// still keys the torrent by path like every other ingest route, so a
// duplicate drop of the same file is just another UpsertTorrent no-op.
func (m *Manager) AddExternal(ctx context.Context, path, infoHash string) error {
	t := &catalog.TorrentRecord{
		Path:       path,
		MagnetLink: "magnet:?xt=urn:btih:" + infoHash,
		IsSeeding:  true,
		IsSeedAll:  true,
	}
	_, err := m.Store.UpsertTorrent(ctx, t)
	return err
}

// selectWantedFiles prioritizes exactly the files named in wanted (matched by
// basename) and deprioritizes the rest. Returns FileNotFound if none of the
// wanted basenames exist in the torrent's actual layout — fatal per spec §4.5.
func (m *Manager) selectWantedFiles(h *torrentdriver.Handle, wanted []string) error {
	files := m.Driver.TorrentFiles(h)
	want := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		want[w] = true
	}

	priorities := make([]int, len(files))
	matched := 0
	for i, f := range files {
		if want[basename(f.Path)] {
			priorities[i] = 7
			matched++
		}
	}
	if matched == 0 {
		return &FileNotFound{Wanted: wanted}
	}
	return m.Driver.PrioritizeFiles(h, priorities)
}
