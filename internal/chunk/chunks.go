// Package chunk implements the PNG chunk container: the signature, the
// ordered sequence of length-prefixed, typed, CRC-protected records, and the
// typed payloads carried by them.
package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Signature is the fixed header of every PNG datastream.
// 137 80 78 71 13 10 26 10
var Signature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

const (
	lengthSize = 4
	typeSize   = 4
	crcSize    = 4
)

var (
	ErrMalformedContainer = errors.New("chunk: malformed container")
	ErrCRCMismatch        = errors.New("chunk: crc mismatch")
	ErrMalformedChunk     = errors.New("chunk: malformed chunk payload")
)

// Chunk defines the chunk layout as specified by PNG datastream structure.
type Chunk struct {
	Length uint32    // A four-byte unsigned integer giving the number of bytes in the chunk's data field.
	Type   ChunkType // A sequence of four bytes defining the chunk type.
	Data   []byte    // The data bytes of the relevant chunk type; can be zero length.
	Crc    uint32    // A four-byte CRC (Cyclic Redundancy Code) calculated on the preceding bytes in the chunk.
	// Includes chunk type and data, but NOT length.

	Payload Payload // Decoded view of Data; takes precedence over Data when serializing.
}

// New builds a chunk of type t whose Data, Length and Crc agree with p.
func New(t ChunkType, p Payload) *Chunk {
	c := &Chunk{Type: t, Payload: p}
	c.Refresh()
	return c
}

// Refresh re-encodes the payload into Data and recomputes Length and Crc.
// It must be called after mutating Payload in place.
func (c *Chunk) Refresh() {
	if c.Payload != nil {
		c.Data = c.Payload.Encode()
	}
	c.Length = uint32(len(c.Data))
	c.Crc = Checksum([]byte(c.Type.slug), c.Data)
}

// TypeCode returns the chunk type as a big-endian integer, e.g. 0x49484452
// for IHDR.
func (c *Chunk) TypeCode() uint32 {
	if len(c.Type.slug) != typeSize {
		return 0
	}
	return binary.BigEndian.Uint32([]byte(c.Type.slug))
}

// Critical determines if a chunk is a Critical or Ancillary type, from the
// case of the first letter of its name.
func (c *Chunk) Critical() bool {
	return len(c.Type.slug) > 0 && c.Type.slug[0] >= 'A' && c.Type.slug[0] <= 'Z'
}

// Clone returns a deep copy of c.
func (c *Chunk) Clone() *Chunk {
	out := *c
	out.Data = bytes.Clone(c.Data)
	if c.Payload != nil {
		out.Payload = c.Payload.clone()
	}
	return &out
}

// Dump writes a human-readable listing of the chunk fields.
func (c *Chunk) Dump(w io.Writer) error {
	kind := "ancillary"
	if c.Critical() {
		kind = "critical"
	}
	if _, err := fmt.Fprintf(w, "length: %08X\ntype  : %08X = %s (%s)\ncrc   : %08X\n",
		c.Length, c.TypeCode(), c.Type, kind, c.Crc); err != nil {
		return err
	}
	if c.Payload == nil {
		return nil
	}
	return c.Payload.Dump(w)
}

// Parse verifies the PNG signature and splits data into chunks up to and
// including IEND. Bytes trailing IEND are ignored.
func Parse(data []byte) (List, error) {
	if len(data) < len(Signature) || !bytes.Equal(data[:len(Signature)], Signature) {
		head := data
		if len(head) > len(Signature) {
			head = head[:len(Signature)]
		}
		return nil, errors.Wrapf(ErrMalformedContainer, "signature mismatch: got %x, expected %x", head, Signature)
	}

	var chunks List
	offset := len(Signature)
	for {
		c, n, err := readChunk(data[offset:])
		if err != nil {
			return nil, errors.Wrapf(err, "chunk %d at offset %d", len(chunks), offset)
		}
		offset += n
		chunks = append(chunks, c)
		if c.Type.Is(ChunkIEND) {
			return chunks, nil
		}
	}
}

// readChunk is a helper to read a single chunk of PNG data. It returns the
// chunk and the number of bytes it occupied.
func readChunk(data []byte) (*Chunk, int, error) {
	// Below is visually what a chunk in the PNG datastream looks like.
	//  +------------+ +------------+ +------------+ +-------+
	//  |   LENGTH   | | CHUNK TYPE | | CHUNK DATA | |  CRC  |
	//  +------------+ +------------+ +------------+ +-------+
	if len(data) == 0 {
		return nil, 0, errors.Wrap(ErrMalformedContainer, "missing IEND chunk")
	}
	if len(data) < lengthSize+typeSize {
		return nil, 0, errors.Wrapf(ErrMalformedContainer, "truncated chunk header: %d bytes left", len(data))
	}

	length := binary.BigEndian.Uint32(data[:lengthSize])
	rawType := data[lengthSize : lengthSize+typeSize]
	start := lengthSize + typeSize
	total := uint64(start) + uint64(length) + crcSize
	if total > uint64(len(data)) {
		return nil, 0, errors.Wrapf(ErrMalformedContainer, "%s: length %d runs past end of data (%d bytes left)",
			rawType, length, len(data)-start)
	}
	end := start + int(length)

	chunkType := ChunkType{string(rawType)}
	chunkData := bytes.Clone(data[start:end])

	// The four-byte CRC is calculated on the preceding bytes in the chunk:
	// chunk type + chunk data.
	storedCRC := binary.BigEndian.Uint32(data[end : end+crcSize])
	computedCRC := Checksum(rawType, chunkData)
	if storedCRC != computedCRC {
		return nil, 0, errors.Wrapf(ErrCRCMismatch, "%s: stored %08x, calculated %08x", chunkType, storedCRC, computedCRC)
	}

	payload, err := DecodePayload(chunkType, chunkData)
	if err != nil {
		return nil, 0, err
	}

	return &Chunk{
		Length:  length,
		Type:    chunkType,
		Data:    chunkData,
		Crc:     storedCRC,
		Payload: payload,
	}, int(total), nil
}

// Serialize writes the signature followed by every chunk. Payloads are
// re-encoded and CRCs recomputed; stored Length and Crc fields are ignored.
func Serialize(chunks List) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(Signature)

	var u32 [4]byte
	for i, c := range chunks {
		if len(c.Type.slug) != typeSize {
			return nil, errors.Wrapf(ErrMalformedChunk, "chunk %d: invalid type %q", i, c.Type.slug)
		}
		data := c.Data
		if c.Payload != nil {
			data = c.Payload.Encode()
		}

		binary.BigEndian.PutUint32(u32[:], uint32(len(data)))
		buf.Write(u32[:])
		buf.WriteString(c.Type.slug)
		buf.Write(data)
		binary.BigEndian.PutUint32(u32[:], Checksum([]byte(c.Type.slug), data))
		buf.Write(u32[:])
	}
	return buf.Bytes(), nil
}

// List is an ordered chunk sequence in on-disk order. Its operations return
// fresh slices and never modify the receiver.
type List []*Chunk

// RemoveMatching returns the chunks for which match reports false.
func (l List) RemoveMatching(match func(*Chunk) bool) List {
	out := make(List, 0, len(l))
	for _, c := range l {
		if !match(c) {
			out = append(out, c)
		}
	}
	return out
}

// InsertBeforeLast returns l with c placed before its final chunk
// (normally IEND). On an empty list c becomes the only chunk.
func (l List) InsertBeforeLast(c *Chunk) List {
	if len(l) == 0 {
		return List{c}
	}
	out := make(List, 0, len(l)+1)
	out = append(out, l[:len(l)-1]...)
	out = append(out, c, l[len(l)-1])
	return out
}

// Find returns the first chunk of type t and its index, or nil and -1.
func (l List) Find(t ChunkType) (*Chunk, int) {
	for i, c := range l {
		if c.Type.Is(t) {
			return c, i
		}
	}
	return nil, -1
}

// Clone returns a deep copy of the list.
func (l List) Clone() List {
	out := make(List, len(l))
	for i, c := range l {
		out[i] = c.Clone()
	}
	return out
}

// Dump writes every chunk in order.
func (l List) Dump(w io.Writer) error {
	for _, c := range l {
		if err := c.Dump(w); err != nil {
			return err
		}
	}
	return nil
}

// OfType returns a predicate matching chunks of type t, for RemoveMatching.
func OfType(t ChunkType) func(*Chunk) bool {
	return func(c *Chunk) bool { return c.Type.Is(t) }
}

// ChunkType is a four-letter chunk name.
type ChunkType struct {
	slug string
}

func (c ChunkType) String() string {
	return c.slug
}

// Is reports whether c and other name the same chunk type.
func (c ChunkType) Is(other ChunkType) bool {
	return Normalize(c.slug) == Normalize(other.slug)
}

// Normalize maps a chunk name to the form used for type matching. Names are
// matched case-insensitively, so the ancillary/private/safe-to-copy bits
// carried by letter case play no part in recognition.
func Normalize(name string) string {
	return strings.ToUpper(name)
}

// FromString returns the ChunkType for a four-byte name.
func FromString(s string) (ChunkType, error) {
	if len(s) != typeSize {
		return Unknown, errors.Errorf("chunk: type %q must be %d bytes", s, typeSize)
	}
	return ChunkType{s}, nil
}

var (
	Unknown = ChunkType{""}

	// NOTE: Critical chunks
	ChunkIHDR = ChunkType{"IHDR"}
	ChunkPLTE = ChunkType{"PLTE"}
	ChunkIDAT = ChunkType{"IDAT"}
	ChunkIEND = ChunkType{"IEND"}

	// NOTE:  Ancillary chunks
	ChunksRGB = ChunkType{"sRGB"}
	ChunktEXt = ChunkType{"tEXt"}
)
