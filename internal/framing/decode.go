package framing

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// Decode extracts the file name and decoded payload bytes given a header, the absolute
// offset of buf[0] (pieceStart), and a buffer that spans at least [payloadStart,
// payloadEnd) for the entry described by h. h.InBuf is read relative to buf[0], so buf
// must begin where the buffer FindHeader searched began. ZIP method 0 is copied verbatim, method 8 is
// inflated with a raw (headerless) deflate window. TAR payloads are copied verbatim.
func Decode(buf []byte, h *Header, pieceStart int64) (name string, data []byte, err error) {
	start, end := PayloadBounds(h, pieceStart)
	relStart := int(start - pieceStart)
	relEnd := int(end - pieceStart)

	if relStart < 0 || relEnd > len(buf) || relStart > relEnd {
		return "", nil, &Truncated{Need: relEnd, Have: len(buf)}
	}
	payload := buf[relStart:relEnd]

	switch h.Format {
	case FormatTAR:
		out := make([]byte, len(payload))
		copy(out, payload)
		return h.Name, out, nil
	case FormatZIP:
		switch h.Method {
		case zipMethodStored:
			out := make([]byte, len(payload))
			copy(out, payload)
			return h.Name, out, nil
		case zipMethodDeflate:
			fr := flate.NewReader(bytes.NewReader(payload))
			defer fr.Close()
			out, rerr := io.ReadAll(fr)
			if rerr != nil {
				return "", nil, &Truncated{Need: -1, Have: len(payload)}
			}
			return h.Name, out, nil
		default:
			return "", nil, &UnsupportedCompression{Method: h.Method}
		}
	default:
		return "", nil, &HeaderNotFound{SearchedFrom: pieceStart + int64(h.InBuf)}
	}
}
