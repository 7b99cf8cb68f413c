package framing

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
)

// buildZIPLocalHeader builds a minimal ZIP local-file-header + name + extra + payload.
func buildZIPLocalHeader(t *testing.T, name string, extra []byte, method uint16, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	hdr := make([]byte, zipLocalHeaderFixed)
	binary.LittleEndian.PutUint32(hdr[0:4], zipLocalFileHeaderSig)
	binary.LittleEndian.PutUint16(hdr[4:6], 20)     // version needed
	binary.LittleEndian.PutUint16(hdr[6:8], 0)      // flags
	binary.LittleEndian.PutUint16(hdr[8:10], method) // method
	binary.LittleEndian.PutUint16(hdr[10:12], 0)    // mod time
	binary.LittleEndian.PutUint16(hdr[12:14], 0)    // mod date
	binary.LittleEndian.PutUint32(hdr[14:18], 0)    // crc32
	binary.LittleEndian.PutUint32(hdr[18:22], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[22:26], 0) // uncompressed size unused in tests
	binary.LittleEndian.PutUint16(hdr[26:28], uint16(len(name)))
	binary.LittleEndian.PutUint16(hdr[28:30], uint16(len(extra)))

	buf.Write(hdr)
	buf.WriteString(name)
	buf.Write(extra)
	buf.Write(payload)
	return buf.Bytes()
}

func deflateRaw(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFindHeader_ZIPStoredAtPieceStart(t *testing.T) {
	// Scenario 1: ZIP stored, header at the first byte of the first piece; payload
	// "hello\n" follows the 30-byte header and the 5-byte name "a.txt", at offset 35.
	payload := []byte("hello\n")
	buf := buildZIPLocalHeader(t, "a.txt", nil, zipMethodStored, payload)

	h, err := FindHeader(buf, 0, 35)
	require.NoError(t, err)
	require.Equal(t, FormatZIP, h.Format)
	require.Equal(t, 0, h.InBuf)

	start, end := PayloadBounds(h, 0)
	require.Equal(t, int64(35), start)
	require.Equal(t, int64(41), end)

	name, data, err := Decode(buf, h, 0)
	require.NoError(t, err)
	require.Equal(t, "a.txt", name)
	require.Equal(t, payload, data)
}

func TestFindHeader_ZIPDeflateStraddlingPiece(t *testing.T) {
	// Scenario 2: piece length 1024, header at absolute offset 1000, fname_len=8, extra=0,
	// deflate payload of a known text that ends inside piece 1.
	text := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 20)
	compressed := deflateRaw(t, text)

	entry := buildZIPLocalHeader(t, "filename", nil, zipMethodDeflate, compressed)
	// pieceStart is 0 for the concatenated two-piece buffer; header begins at offset 1000.
	buf := make([]byte, 1000)
	buf = append(buf, entry...)

	h, err := FindHeader(buf, 0, 1038) // payload starts at 1000+30+8=1038
	require.NoError(t, err)
	require.Equal(t, 1000, h.InBuf)
	require.Equal(t, 8, h.NameLen)

	start, end := PayloadBounds(h, 0)
	require.Equal(t, int64(1000+30+8), start)
	require.Equal(t, int64(1000+30+8+len(compressed)), end)
	require.Equal(t, int64(1), end/1024)

	name, data, err := Decode(buf, h, 0)
	require.NoError(t, err)
	require.Equal(t, "filename", name)
	require.Equal(t, text, data)
}

func buildTARBlock(t *testing.T, name string, payload []byte) []byte {
	t.Helper()
	block := make([]byte, tarBlockSize)
	copy(block[0:tarNameLen], name)
	sizeOctal := []byte(padOctal(int64(len(payload)), tarSizeLen))
	copy(block[tarSizeOffset:tarSizeOffset+tarSizeLen], sizeOctal)
	copy(block[tarMagicOffset:tarMagicOffset+5], tarMagic)

	var buf bytes.Buffer
	buf.Write(block)
	buf.Write(payload)
	// real tar streams pad the payload to a 512 boundary; the parser does not need it,
	// so no padding is added here
	return buf.Bytes()
}

func padOctal(n int64, width int) string {
	s := []byte{}
	for i := 0; i < width-1; i++ {
		s = append([]byte{byte('0' + (n & 7))}, s...)
		n >>= 3
	}
	return string(s) + "\x00"
}

func TestFindHeader_TAR(t *testing.T) {
	// Scenario 3: TAR ustar, block at absolute offset 0, payload at offset 512.
	payload := []byte("0123456789")
	buf := buildTARBlock(t, "data.bin", payload)

	h, err := FindHeader(buf, 0, 512)
	require.NoError(t, err)
	require.Equal(t, FormatTAR, h.Format)
	require.Equal(t, 0, h.InBuf)
	require.Equal(t, int64(10), h.CompSize)

	start, end := PayloadBounds(h, 0)
	require.Equal(t, int64(512), start)
	require.Equal(t, int64(522), end)

	name, data, err := Decode(buf, h, 0)
	require.NoError(t, err)
	require.Equal(t, "data.bin", name)
	require.Equal(t, payload, data)
}

func TestTARZeroLengthFile(t *testing.T) {
	buf := buildTARBlock(t, "empty.txt", nil)
	h, err := FindHeader(buf, 0, 512)
	require.NoError(t, err)
	start, end := PayloadBounds(h, 0)
	require.Equal(t, start, end)
	_, data, err := Decode(buf, h, 0)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestTARNameExactly100BytesNoNUL(t *testing.T) {
	name := bytes.Repeat([]byte("a"), tarNameLen) // fills the field, no NUL terminator
	block := make([]byte, tarBlockSize)
	copy(block[0:tarNameLen], name)
	copy(block[tarMagicOffset:tarMagicOffset+5], tarMagic)

	_, err := parseTARHeader(block, 0)
	require.Error(t, err)
	var malformed *MalformedName
	require.ErrorAs(t, err, &malformed)
}

func TestZIPUnsupportedCompressionMethod(t *testing.T) {
	buf := buildZIPLocalHeader(t, "x.bin", nil, 99, []byte("data"))
	_, err := FindHeader(buf, 0, 30)
	require.Error(t, err)
	var unsupported *UnsupportedCompression
	require.ErrorAs(t, err, &unsupported)
	require.ErrorIs(t, err, ErrFraming)
}

func TestZIPWithExtraField(t *testing.T) {
	payload := []byte("payload-with-extra")
	extra := []byte{0x01, 0x02, 0x03, 0x04}
	buf := buildZIPLocalHeader(t, "x.bin", extra, zipMethodStored, payload)

	h, err := FindHeader(buf, 0, int64(zipLocalHeaderFixed+len("x.bin")+len(extra)))
	require.NoError(t, err)
	require.Equal(t, len(extra), h.ExtraLen)

	_, data, err := Decode(buf, h, 0)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestHeaderNotFound(t *testing.T) {
	buf := make([]byte, 64)
	_, err := FindHeader(buf, 0, 40)
	require.Error(t, err)
	var notFound *HeaderNotFound
	require.ErrorAs(t, err, &notFound)
	require.ErrorIs(t, err, ErrFraming)
}
