// Package framing locates and decodes a single ZIP local-file-header or TAR ustar
// header inside a raw, possibly piece-boundary-straddling byte buffer, and computes the
// absolute byte range of the payload that follows it.
//
// It does not implement general ZIP or TAR readers: archive/zip needs random access to
// a central directory at the end of the file, and archive/tar only reads forward from
// the start of a stream. Neither supports "find the header that precedes an arbitrary
// mid-stream payload offset inside a buffer that may not start at a header boundary",
// which is the one operation this package exists for.
package framing

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Format identifies which container format a parsed header belongs to.
type Format int

const (
	FormatUnknown Format = iota
	FormatZIP
	FormatTAR
)

func (f Format) String() string {
	switch f {
	case FormatZIP:
		return "zip"
	case FormatTAR:
		return "tar"
	default:
		return "unknown"
	}
}

const (
	zipLocalFileHeaderSig = 0x04034b50 // little-endian "PK\x03\x04"
	zipLocalHeaderFixed   = 30         // bytes before the variable-length name/extra fields

	tarBlockSize   = 512
	tarMagicOffset = 257
	tarMagic       = "ustar"
	tarNameLen     = 100
	tarSizeOffset  = 124
	tarSizeLen     = 12
)

// Header is the result of locating and parsing one container entry header.
type Header struct {
	Format   Format
	InBuf    int   // index of the header's first byte within the supplied buffer
	NameLen  int   // ZIP only; 0 for TAR (name lives inline in the 512-byte block)
	ExtraLen int   // ZIP only
	CompSize int64 // ZIP: compressed size; TAR: file size (no separate compressed size)
	Method   uint16
	Name     string
}

// FindHeader scans backward from the byte in buf corresponding to the absolute offset
// startOffset (the payload start) looking for a ZIP local-file-header signature or a TAR
// ustar magic. pieceStart is the absolute offset at which buf[0] sits in the torrent's
// logical data stream.
//
// Per the precondition in spec §4.1, if startOffset-pieceStart < 512 the caller must
// have prepended the previous piece onto buf so the scan has somewhere to land; this
// function does not fetch additional data itself.
func FindHeader(buf []byte, pieceStart, startOffset int64) (*Header, error) {
	relStart := int(startOffset - pieceStart)
	if relStart < 0 || relStart > len(buf) {
		return nil, fmt.Errorf("framing: start offset %d out of buffer range [%d,%d): %w",
			startOffset, pieceStart, pieceStart+int64(len(buf)), ErrFraming)
	}

	if idx, ok := findZIPSignature(buf, relStart); ok {
		h, err := parseZIPHeader(buf, idx)
		if err != nil {
			return nil, err
		}
		return h, nil
	}

	if idx, ok := findTARMagic(buf, relStart); ok {
		h, err := parseTARHeader(buf, idx)
		if err != nil {
			return nil, err
		}
		return h, nil
	}

	return nil, &HeaderNotFound{SearchedFrom: startOffset}
}

// findZIPSignature scans buf[0:relStart] backward for the 4-byte ZIP local-file-header
// signature, returning the index of its first byte.
func findZIPSignature(buf []byte, relStart int) (int, bool) {
	sig := make([]byte, 4)
	binary.LittleEndian.PutUint32(sig, zipLocalFileHeaderSig)

	limit := relStart
	if limit > len(buf) {
		limit = len(buf)
	}
	for i := limit - 4; i >= 0; i-- {
		if bytes.Equal(buf[i:i+4], sig) {
			return i, true
		}
	}
	return 0, false
}

// findTARMagic scans buf backward for a candidate 512-byte block start whose bytes
// [257:262) equal "ustar". Every byte position is tried as a block start; alignment to
// tarBlockSize is not assumed, since the caller may have handed us a buffer that does
// not begin on a block boundary.
func findTARMagic(buf []byte, relStart int) (int, bool) {
	magicLen := len(tarMagic)
	limit := relStart
	if limit > len(buf) {
		limit = len(buf)
	}
	for blockStart := limit - tarBlockSize; blockStart >= 0; blockStart-- {
		magicAt := blockStart + tarMagicOffset
		if magicAt+magicLen > len(buf) {
			continue
		}
		if string(buf[magicAt:magicAt+magicLen]) == tarMagic {
			return blockStart, true
		}
	}
	return 0, false
}

// PayloadBounds returns the absolute [start,end) byte range of the payload described by
// h, given the absolute offset of buf[0] (pieceStart). This is a pure function of the
// header fields and is the sole authority for "which piece is last."
func PayloadBounds(h *Header, pieceStart int64) (start, end int64) {
	switch h.Format {
	case FormatZIP:
		start = pieceStart + int64(h.InBuf) + zipLocalHeaderFixed + int64(h.NameLen) + int64(h.ExtraLen)
		end = start + h.CompSize
	case FormatTAR:
		start = pieceStart + int64(h.InBuf) + tarBlockSize
		end = start + h.CompSize
	}
	return start, end
}
