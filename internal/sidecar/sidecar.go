// Package sidecar persists the planner's offset→archive-entry mapping as the
// byte-offset JSON oracle described in spec §4.2 and §6.1: one file per
// torrent, named "<infohash>_byteoffsets.json", read by the extractor's fast
// path and written by the extractor after a tier-2 or tier-3 extraction.
package sidecar

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Entry records where a previously-extracted offset's archive entry lives:
// Path is relative to downloads_root, StartOffset is the archive's own base
// offset within the torrent's logical data stream.
type Entry struct {
	Path        string `json:"path"`
	StartOffset int64  `json:"start_offset"`
}

// Map is keyed by the decimal string form of an absolute byte offset, matching
// the on-disk encoding spec §6.1 documents.
type Map map[string]Entry

// FileName returns the sidecar filename for a torrent's infohash.
func FileName(infoHash string) string {
	return infoHash + "_byteoffsets.json"
}

// Load reads the sidecar for infoHash under downloadsRoot. A missing file is
// not an error — the extractor's fast path simply has nothing to consult yet.
func Load(downloadsRoot, infoHash string) (Map, error) {
	path := filepath.Join(downloadsRoot, FileName(infoHash))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Map{}, nil
	}
	if err != nil {
		return nil, err
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Save atomically (write-then-rename) persists m for infoHash under
// downloadsRoot, so a crash mid-write never corrupts the oracle a later
// extraction depends on.
func Save(downloadsRoot, infoHash string, m Map) error {
	path := filepath.Join(downloadsRoot, FileName(infoHash))
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Lookup returns the entry for offset, if any, and whether it was found.
func (m Map) Lookup(offset int64) (Entry, bool) {
	e, ok := m[strconv.FormatInt(offset, 10)]
	return e, ok
}

// Put records offset → e. Callers persist the result with Save.
func (m Map) Put(offset int64, e Entry) {
	m[strconv.FormatInt(offset, 10)] = e
}
