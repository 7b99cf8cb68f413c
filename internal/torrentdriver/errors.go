package torrentdriver

import "fmt"

// MetadataTimeout is returned by WaitMetadata when the caller's context ends
// before a torrent's metadata arrives (spec §4.3).
type MetadataTimeout struct {
	InfoHash string
}

func (e *MetadataTimeout) Error() string {
	return fmt.Sprintf("torrentdriver: metadata for %s did not arrive before the wait ended", e.InfoHash)
}

// ErrNoInfoBytes is returned when a .torrent file's raw info dictionary bytes
// could not be recovered — AddTorrentFile refuses to add a torrent under a
// recomputed info hash that might not match what peers expect.
var ErrNoInfoBytes = fmt.Errorf("torrentdriver: torrent file has no recoverable raw info bytes")
