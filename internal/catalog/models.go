package catalog

import "strings"

// listSep is the storage encoding for the three "list encoded as string" fields
// (server_path, ipfs_cid, language). Per spec §9 this is a persistence detail only —
// callers always see the parsed []string form.
const listSep = ";"

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, listSep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinList(items []string) string {
	return strings.Join(items, listSep)
}

// FileRecord is the catalog unit described in spec §3. MD5 is the identity.
type FileRecord struct {
	ID                    int64
	MD5                   string
	Title                 string
	Author                string
	Year                  *int
	Extension             string
	ServerPath            []string // ordered list of candidate in-archive paths
	Description           string   // decompressed on read; empty if absent
	CoverURL              string
	LanguageCodes         []string
	IPFSCIDs              []string
	Byteoffset            *int64
	TorrentID             *int64
	IsJournal             bool
	IsComplete            bool // derived: true iff a matching TorrentFileRecord is complete
}

// Downloadable reports whether f can be fetched at all (invariant 2 in spec §3).
func (f *FileRecord) Downloadable() bool {
	return f.TorrentID != nil || len(f.IPFSCIDs) > 0
}

// TorrentRecord is keyed internally by ID, naturally by Path (spec §3).
type TorrentRecord struct {
	ID          int64
	Path        string
	MagnetLink  string
	AddedAt     string // opaque upstream timestamp string
	DataSize    int64
	NumFiles    int
	Obsolete    bool
	Embargo     bool
	IsSeeding   bool
	IsSeedAll   bool

	// Files populated only when IsSeedAll is false (spec §4.5 "desired set").
	Files []TorrentFileRecord
}

// TorrentFileRecord tracks per-file completion within a torrent (spec §3).
type TorrentFileRecord struct {
	ID         int64
	TorrentID  int64
	FileID     int64
	Filename   string
	IsComplete bool
	LocalPath  string
}
