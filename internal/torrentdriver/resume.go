package torrentdriver

import (
	"encoding/json"
	"fmt"
	"os"
)

// ResumeFile is the on-disk shape of a <infohash>.fastresume sidecar: enough
// to re-add a torrent after a restart without re-fetching metadata, the same
// role migrate.go's raw-info-bytes preservation played for the original
// engine's .torrent rewriting.
type ResumeFile struct {
	InfoHash     string `json:"info_hash"`
	Magnet       string `json:"magnet,omitempty"`
	TorrentBytes []byte `json:"torrent_bytes,omitempty"`
}

// writeResumeFile writes r to path atomically: write to a temp file in the
// same directory, then rename over the destination, so a crash mid-write
// never leaves a truncated resume file behind.
func writeResumeFile(path string, r *ResumeFile) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("torrentdriver: marshal resume data: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("torrentdriver: write resume tempfile: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("torrentdriver: rename resume file: %w", err)
	}
	return nil
}

// LoadResumeFile reads back a resume sidecar written by SaveResumeData.
func LoadResumeFile(path string) (*ResumeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r ResumeFile
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("torrentdriver: unmarshal resume data: %w", err)
	}
	return &r, nil
}
