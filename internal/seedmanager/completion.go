package seedmanager

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"path"
	"path/filepath"

	"github.com/shardkeeper/shardkeeper/internal/catalog"
)

const seedAllPageSize = 100

func basename(p string) string {
	return path.Base(filepath.ToSlash(p))
}

// checkCompletion implements spec §4.5's completion step: on the tick a
// SessionTorrent's progress first reaches 1.0, it runs the
// targeted-or-seed_all bookkeeping once and persists resume data. Later
// ticks see st.Complete already true and do nothing, keeping is_complete
// monotone (spec §8).
func (m *Manager) checkCompletion(ctx context.Context, st *SessionTorrent) {
	if st.Complete || st.Handle == nil {
		return
	}

	status := m.Driver.Status(st.Handle)
	if status.BytesTotal <= 0 || status.BytesCompleted < status.BytesTotal {
		return
	}

	if st.Torrent.IsSeedAll {
		m.completeSeedAll(ctx, st)
	} else {
		m.completeTargeted(ctx, st)
	}

	st.Complete = true
	m.Driver.SaveResumeData(st.Handle)
}

func (m *Manager) completeTargeted(ctx context.Context, st *SessionTorrent) {
	files := m.Driver.TorrentFiles(st.Handle)
	byBase := make(map[string]string, len(files))
	for _, f := range files {
		byBase[basename(f.Path)] = f.Path
	}

	for _, tf := range st.Torrent.Files {
		relPath, ok := byBase[tf.Filename]
		if !ok {
			continue
		}
		localPath := filepath.Join(m.DownloadsRoot, relPath)
		if err := m.Store.SetTorrentFileComplete(ctx, tf.ID, true, localPath); err != nil {
			log.Printf("[seedmanager] mark complete %s (torrent %d): %v", tf.Filename, st.Torrent.ID, err)
		}
	}
	log.Printf("[seedmanager] torrent %d (%s) targeted completion: %d files", st.Torrent.ID, st.Torrent.Path, len(st.Torrent.Files))
}

// completeSeedAll implements the is_seed_all bookkeeping spec §4.5/§9
// describe: a paged iterator over FileRecords belonging to this torrent,
// matching each against the torrent's actual file paths by basename. Pages
// are not wrapped in a transaction: each insert commits on its own.
// Idempotent via FindTorrentFileByFileID so a replayed page after a crash
// never double-inserts.
func (m *Manager) completeSeedAll(ctx context.Context, st *SessionTorrent) {
	files := m.Driver.TorrentFiles(st.Handle)
	byBase := make(map[string]string, len(files))
	for _, f := range files {
		byBase[basename(f.Path)] = f.Path
	}

	var afterID int64
	total := 0
	for {
		page, err := m.Store.FindFilesByTorrentPage(ctx, st.Torrent.ID, afterID, seedAllPageSize)
		if err != nil {
			log.Printf("[seedmanager] seed_all completion page for torrent %d: %v", st.Torrent.ID, err)
			return
		}
		if len(page) == 0 {
			break
		}
		for _, f := range page {
			afterID = f.ID
			m.completeOneSeedAllFile(ctx, st, f, byBase)
			total++
		}
		if len(page) < seedAllPageSize {
			break
		}
	}
	log.Printf("[seedmanager] torrent %d (%s) seed_all completion: scanned %d files", st.Torrent.ID, st.Torrent.Path, total)
}

func (m *Manager) completeOneSeedAllFile(ctx context.Context, st *SessionTorrent, f *catalog.FileRecord, byBase map[string]string) {
	var matchedBase string
	for _, sp := range f.ServerPath {
		if relPath, ok := byBase[basename(sp)]; ok {
			matchedBase = relPath
			break
		}
	}
	if matchedBase == "" {
		return
	}

	if _, err := m.Store.FindTorrentFileByFileID(ctx, f.ID); err == nil {
		return // already has an active TorrentFileRecord
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Printf("[seedmanager] lookup torrent_files for file %d: %v", f.ID, err)
		return
	}

	_, err := m.Store.InsertTorrentFile(ctx, &catalog.TorrentFileRecord{
		TorrentID:  st.Torrent.ID,
		FileID:     f.ID,
		Filename:   basename(matchedBase),
		IsComplete: true,
		LocalPath:  filepath.Join(m.DownloadsRoot, matchedBase),
	})
	if err != nil {
		log.Printf("[seedmanager] insert completed torrent_file for file %d: %v", f.ID, err)
	}
}
