package extractor

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// infoHashFromMagnet recovers the 40-char hex info hash from a torrent's
// stored magnet link (the "xt=urn:btih:<hash>" parameter), the same
// identifier torrentdriver uses to name .torrent and sidecar files on disk
// (spec §6.1).
func infoHashFromMagnet(magnet string) (string, error) {
	u, err := url.Parse(magnet)
	if err != nil {
		return "", fmt.Errorf("parse magnet uri: %w", err)
	}
	for _, xt := range u.Query()["xt"] {
		const prefix = "urn:btih:"
		if !strings.HasPrefix(xt, prefix) {
			continue
		}
		hash := strings.ToLower(strings.TrimPrefix(xt, prefix))
		switch len(hash) {
		case 40:
			if _, err := hex.DecodeString(hash); err == nil {
				return hash, nil
			}
		case 32:
			// base32-encoded info hash; not produced by this system's own
			// torrent files but accepted from upstream magnet links.
			raw, err := base32.StdEncoding.DecodeString(strings.ToUpper(hash))
			if err == nil && len(raw) == 20 {
				return hex.EncodeToString(raw), nil
			}
		}
	}
	return "", fmt.Errorf("no btih info hash found in magnet uri")
}
