package framing

import "encoding/binary"

const (
	zipMethodStored  uint16 = 0
	zipMethodDeflate uint16 = 8
)

// parseZIPHeader parses a 30-byte ZIP local file header starting at buf[idx], per the
// fixed layout in spec §4.1: signature(4) version(2) flags(2) method(2) modtime(2)
// moddate(2) crc32(4) compsize(4) uncompsize(4) namelen(2) extralen(2).
func parseZIPHeader(buf []byte, idx int) (*Header, error) {
	if idx+zipLocalHeaderFixed > len(buf) {
		return nil, &Truncated{Need: idx + zipLocalHeaderFixed, Have: len(buf)}
	}

	b := buf[idx:]
	method := binary.LittleEndian.Uint16(b[8:10])
	if method != zipMethodStored && method != zipMethodDeflate {
		return nil, &UnsupportedCompression{Method: method}
	}

	compSize := binary.LittleEndian.Uint32(b[18:22])
	nameLen := binary.LittleEndian.Uint16(b[26:28])
	extraLen := binary.LittleEndian.Uint16(b[28:30])

	nameStart := idx + zipLocalHeaderFixed
	nameEnd := nameStart + int(nameLen)
	var name string
	if nameEnd <= len(buf) {
		name = string(buf[nameStart:nameEnd])
	}

	return &Header{
		Format:   FormatZIP,
		InBuf:    idx,
		NameLen:  int(nameLen),
		ExtraLen: int(extraLen),
		CompSize: int64(compSize),
		Method:   method,
		Name:     name,
	}, nil
}
