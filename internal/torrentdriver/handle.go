package torrentdriver

import (
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
)

// Handle is the opaque session torrent handle spec §4.3 operates on. The raw
// *torrent.Torrent is never exposed outside this package.
type Handle struct {
	t         *torrent.Torrent
	infoHash  metainfo.Hash
	magnet    string // empty unless added by magnet
	torrentBytes []byte // raw .torrent bytes, kept for re-adding after a path switch
}

// InfoHash returns the 40-char hex info hash identifying this torrent.
func (h *Handle) InfoHash() string {
	return h.infoHash.HexString()
}

// FileInfo describes one file within a torrent's logical layout.
type FileInfo struct {
	Path   string
	Offset int64
	Length int64
}

// Status is a snapshot of a torrent's current progress (spec §4.3 "status").
type Status struct {
	InfoHash       string
	BytesCompleted int64
	BytesTotal     int64
	NumPeers       int
	Seeding        bool
	HasMetadata    bool
}
