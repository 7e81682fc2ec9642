package term

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// External term format tags.
const (
	versionTag = 131

	tagCompressed     = 80
	tagNewFloat       = 70
	tagBitBinary      = 77
	tagNewPid         = 88
	tagNewerReference = 90
	tagSmallInteger   = 97
	tagInteger        = 98
	tagAtom           = 100
	tagPid            = 103
	tagSmallTuple     = 104
	tagLargeTuple     = 105
	tagNil            = 106
	tagString         = 107
	tagList           = 108
	tagBinary         = 109
	tagSmallBig       = 110
	tagLargeBig       = 111
	tagNewReference   = 114
	tagSmallAtom      = 115
	tagMap            = 116
	tagAtomUTF8       = 118
	tagSmallAtomUTF8  = 119
)

const (
	maxDepth = 512
	// Matches the default {packet, 4} ceiling we are willing to inflate to.
	maxUncompressedSize = 64 << 20
)

var (
	// ErrVersion is returned when a payload does not start with the version byte.
	ErrVersion = errors.New("term: missing external term format version byte")
	// ErrTruncated is returned when a payload ends in the middle of a term.
	ErrTruncated = errors.New("term: truncated payload")
)

// Marshal encodes t in the external term format, version byte included.
func Marshal(t Term) ([]byte, error) {
	e := encoder{buf: make([]byte, 0, 64)}
	e.buf = append(e.buf, versionTag)
	if err := e.encode(t, 0); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// Unmarshal decodes a single term. Trailing bytes are rejected.
func Unmarshal(data []byte) (Term, error) {
	if len(data) == 0 || data[0] != versionTag {
		return nil, ErrVersion
	}
	data = data[1:]
	if len(data) > 0 && data[0] == tagCompressed {
		inflated, err := inflate(data[1:])
		if err != nil {
			return nil, err
		}
		data = inflated
	}

	d := decoder{buf: data}
	t, err := d.decode(0)
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.buf) {
		return nil, fmt.Errorf("term: %d trailing bytes after term", len(d.buf)-d.pos)
	}
	return t, nil
}

// MarshalCompressed encodes t and deflates the body the way
// term_to_binary(T, [compressed]) does.
func MarshalCompressed(t Term) ([]byte, error) {
	raw, err := Marshal(t)
	if err != nil {
		return nil, err
	}
	body := raw[1:]

	var buf bytes.Buffer
	buf.WriteByte(versionTag)
	buf.WriteByte(tagCompressed)
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(body)))
	buf.Write(size[:])

	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	size := binary.BigEndian.Uint32(data)
	if size > maxUncompressedSize {
		return nil, fmt.Errorf("term: compressed term too large: %d bytes", size)
	}

	zr, err := zlib.NewReader(bytes.NewReader(data[4:]))
	if err != nil {
		return nil, fmt.Errorf("term: inflate: %w", err)
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("term: inflate: %w", err)
	}
	return out, nil
}
