package seedmanager

import "fmt"

// MetadataTimeout mirrors torrentdriver.MetadataTimeout for the case where a
// torrent's magnet add is missing or timed out and no upstream fetcher is
// configured to fall back to.
type MetadataTimeout struct {
	Path string
}

func (e *MetadataTimeout) Error() string {
	return fmt.Sprintf("seedmanager: %s: metadata timeout and no upstream fetcher configured", e.Path)
}

// FileNotFound is fatal for one start_torrent attempt: none of the wanted
// basenames exist in the torrent's actual file layout (spec §4.5).
type FileNotFound struct {
	Wanted []string
}

func (e *FileNotFound) Error() string {
	return fmt.Sprintf("seedmanager: none of the wanted files %v found in torrent", e.Wanted)
}
