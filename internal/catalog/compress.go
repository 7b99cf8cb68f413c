package catalog

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// compressDescription zlib-compresses a description for at-rest storage (spec §4.6:
// "description is compressed at rest"). Empty descriptions are stored as nil, never
// as a zero-length zlib stream; decompressDescription reads nil back as "".
func compressDescription(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressDescription(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
