package torrentdriver

import (
	"fmt"
	"path/filepath"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

// FilesFromTorrentBytes parses a .torrent file's metainfo and returns its
// logical file layout in declared order — each file's absolute base offset
// within the torrent's concatenated data stream — without needing a live
// engine handle. This is what the extractor's tier-2 path (spec §4.4) uses to
// derive `{file_path_in_torrent, file_base_offset}` straight from a cached
// .torrent file.
func FilesFromTorrentBytes(torrentBytes []byte) ([]FileInfo, error) {
	var mi metainfo.MetaInfo
	if err := bencode.Unmarshal(torrentBytes, &mi); err != nil {
		return nil, fmt.Errorf("torrentdriver: parse torrent file: %w", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("torrentdriver: parse info dict: %w", err)
	}
	return filesFromInfo(&info), nil
}

// InfoHashFromTorrentBytes parses just enough of a .torrent file to return
// its 40-char hex info hash, for callers (the watch-folder) that need to
// identify a dropped .torrent file without adding it to the engine.
func InfoHashFromTorrentBytes(torrentBytes []byte) (string, error) {
	var mi metainfo.MetaInfo
	if err := bencode.Unmarshal(torrentBytes, &mi); err != nil {
		return "", fmt.Errorf("torrentdriver: parse torrent file: %w", err)
	}
	if len(mi.InfoBytes) == 0 {
		return "", ErrNoInfoBytes
	}
	return mi.HashInfoBytes().HexString(), nil
}

func filesFromInfo(info *metainfo.Info) []FileInfo {
	if len(info.Files) == 0 {
		return []FileInfo{{Path: info.Name, Offset: 0, Length: info.Length}}
	}
	out := make([]FileInfo, 0, len(info.Files))
	var offset int64
	for _, f := range info.Files {
		out = append(out, FileInfo{
			Path:   filepath.Join(append([]string{info.Name}, f.Path...)...),
			Offset: offset,
			Length: f.Length,
		})
		offset += f.Length
	}
	return out
}

// fileContainingOffset returns the file whose [Offset, Offset+Length) range
// contains offset, or ok=false if none does.
func fileContainingOffset(files []FileInfo, offset int64) (FileInfo, bool) {
	for _, f := range files {
		if offset >= f.Offset && offset < f.Offset+f.Length {
			return f, true
		}
	}
	return FileInfo{}, false
}

// FileContainingOffset is the exported form of fileContainingOffset, used by
// the extractor to derive a sidecar entry from a torrent's file layout.
func FileContainingOffset(files []FileInfo, offset int64) (FileInfo, bool) {
	return fileContainingOffset(files, offset)
}
