package seedmanager

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxIPFSSubstitutionFiles = 10
	ipfsFetchTimeout         = 10 * time.Second
	postRecheckSettle        = 2 * time.Second
)

// sortedCIDs orders a FileRecord's CIDs the way spec §4.5 tries them: CIDv1
// ("ba…") before any other form, lexicographic within each group.
func sortedCIDs(cids []string) []string {
	out := append([]string(nil), cids...)
	sort.Slice(out, func(i, j int) bool {
		iv1, jv1 := strings.HasPrefix(out[i], "ba"), strings.HasPrefix(out[j], "ba")
		if iv1 != jv1 {
			return iv1
		}
		return out[i] < out[j]
	})
	return out
}

type ipfsFetchedFile struct {
	fileID   int64
	filename string
	destPath string
}

// tryIPFSSubstitution implements spec §4.5's opportunistic IPFS substitution:
// at most one attempt per SessionTorrent, only for targeted torrents with
// <=10 wanted files. A successful fetch pauses the torrent, renames the blob
// into the path the driver expects, force-rechecks, and resumes.
func (m *Manager) tryIPFSSubstitution(ctx context.Context, st *SessionTorrent) {
	if st.IPFSProcessed || st.Complete || st.Handle == nil {
		return
	}
	if m.IPFS == nil || len(m.IPFSGateways) == 0 {
		return
	}
	if st.Torrent.IsSeedAll || len(st.Torrent.Files) == 0 || len(st.Torrent.Files) > maxIPFSSubstitutionFiles {
		return
	}

	attemptID := uuid.New().String()

	incomplete := make([]int64, 0, len(st.Torrent.Files))
	filenameByFileID := make(map[int64]string, len(st.Torrent.Files))
	for _, tf := range st.Torrent.Files {
		if tf.IsComplete {
			continue
		}
		incomplete = append(incomplete, tf.FileID)
		filenameByFileID[tf.FileID] = tf.Filename
	}
	if len(incomplete) == 0 {
		return
	}

	records, err := m.Store.FindByIDs(ctx, incomplete)
	if err != nil {
		log.Printf("[seedmanager] attempt=%s ipfs substitution: find_by_ids for torrent %d: %v", attemptID, st.Torrent.ID, err)
		return
	}

	var fetched []ipfsFetchedFile
	for _, f := range records {
		if len(f.IPFSCIDs) == 0 {
			continue
		}
		for _, cid := range sortedCIDs(f.IPFSCIDs) {
			dest := filepath.Join(m.DownloadsRoot, ".ipfs."+cid)
			if m.fetchFromAnyGateway(ctx, attemptID, cid, dest) {
				fetched = append(fetched, ipfsFetchedFile{fileID: f.ID, filename: filenameByFileID[f.ID], destPath: dest})
				break
			}
		}
	}

	st.IPFSProcessed = true // one attempt per SessionTorrent regardless of outcome
	if len(fetched) == 0 {
		return
	}

	m.installIPFSFiles(attemptID, st, fetched)
}

func (m *Manager) fetchFromAnyGateway(ctx context.Context, attemptID, cid, dest string) bool {
	for _, gw := range m.IPFSGateways {
		fctx, cancel := context.WithTimeout(ctx, ipfsFetchTimeout)
		err := m.IPFS.Fetch(fctx, gw, cid, dest)
		cancel()
		if err == nil {
			return true
		}
		log.Printf("[seedmanager] attempt=%s ipfs fetch %s from %s: %v", attemptID, cid, gw, err)
	}
	return false
}

func (m *Manager) installIPFSFiles(attemptID string, st *SessionTorrent, fetched []ipfsFetchedFile) {
	m.Driver.Pause(st.Handle)
	defer m.Driver.Resume(st.Handle)

	files := m.Driver.TorrentFiles(st.Handle)
	byBase := make(map[string]string, len(files))
	for _, f := range files {
		byBase[basename(f.Path)] = f.Path
	}

	installed := 0
	for _, ff := range fetched {
		relPath, ok := byBase[ff.filename]
		if !ok {
			os.Remove(ff.destPath)
			continue
		}
		target := filepath.Join(m.DownloadsRoot, relPath)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			log.Printf("[seedmanager] attempt=%s ipfs substitution: mkdir %s: %v", attemptID, filepath.Dir(target), err)
			continue
		}
		if err := os.Rename(ff.destPath, target); err != nil {
			log.Printf("[seedmanager] attempt=%s ipfs substitution: rename %s -> %s: %v", attemptID, ff.destPath, target, err)
			continue
		}
		installed++
	}
	if installed == 0 {
		return
	}

	log.Printf("[seedmanager] attempt=%s torrent %d: installed %d ipfs-substituted file(s), rechecking", attemptID, st.Torrent.ID, installed)
	m.Driver.ForceRecheck(st.Handle)
	time.Sleep(postRecheckSettle)
}
