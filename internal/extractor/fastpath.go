package extractor

import (
	"fmt"
	"io"
	"os"

	"github.com/shardkeeper/shardkeeper/internal/framing"
)

// headerLookback is how far before a payload start the fast and on-disk
// metadata paths read to find the enclosing header (spec §4.4: enough to
// hold a full TAR block, or comfortably more than the largest plausible ZIP
// local header + name).
const headerLookback = 512

// extractFromFile re-derives and decodes one entry's payload directly from an
// already-downloaded archive file on disk, given the archive-local byte
// position the payload starts at. Both the sidecar fast path and the
// .torrent-derived path (tiers 1 and 2 of spec §4.4) funnel through this once
// they've resolved a path and a local offset.
func extractFromFile(path string, localPayloadStart int64) (name string, data []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, &IOError{Op: "open archive", Err: err}
	}
	defer f.Close()

	headerStart := localPayloadStart - headerLookback
	if headerStart < 0 {
		headerStart = 0
	}

	headerBuf := make([]byte, int(localPayloadStart-headerStart))
	if _, err := f.ReadAt(headerBuf, headerStart); err != nil && err != io.EOF {
		return "", nil, &IOError{Op: "read header window", Err: err}
	}

	h, err := framing.FindHeader(headerBuf, headerStart, localPayloadStart)
	if err != nil {
		return "", nil, err
	}

	// h.InBuf counts from headerStart, so the buffer handed to Decode starts there too.
	_, dataEnd := framing.PayloadBounds(h, headerStart)
	window := make([]byte, dataEnd-headerStart)
	if len(window) > 0 {
		if _, err := f.ReadAt(window, headerStart); err != nil {
			return "", nil, &IOError{Op: "read payload", Err: err}
		}
	}

	name, data, err = framing.Decode(window, h, headerStart)
	if err != nil {
		return "", nil, fmt.Errorf("extractor: decode %s: %w", path, err)
	}
	return name, data, nil
}
