package framing

import (
	"bytes"
	"strconv"
	"strings"
)

// parseTARHeader parses a 512-byte ustar block starting at buf[idx], per spec §4.1: name
// is the NUL-trimmed UTF-8 of bytes [0,100), size is the NUL-trimmed ASCII of bytes
// [124,136) read as octal.
func parseTARHeader(buf []byte, idx int) (*Header, error) {
	if idx+tarBlockSize > len(buf) {
		return nil, &Truncated{Need: idx + tarBlockSize, Have: len(buf)}
	}
	block := buf[idx : idx+tarBlockSize]

	nameField := block[0:tarNameLen]
	nul := bytes.IndexByte(nameField, 0)
	if nul < 0 {
		return nil, &MalformedName{}
	}
	name := string(nameField[:nul])

	sizeField := string(block[tarSizeOffset : tarSizeOffset+tarSizeLen])
	sizeField = strings.TrimRight(sizeField, "\x00")
	sizeField = strings.TrimSpace(sizeField)
	if sizeField == "" {
		sizeField = "0"
	}
	size, err := strconv.ParseInt(sizeField, 8, 64)
	if err != nil {
		return nil, &Truncated{Need: 0, Have: 0}
	}

	return &Header{
		Format:   FormatTAR,
		InBuf:    idx,
		CompSize: size,
		Name:     name,
	}, nil
}
