package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Payload is the decoded data field of a chunk. The set of implementations
// is closed: IHDR, PLTE, SRGB, IDAT, TEXT, IEND, and Raw for every other
// chunk type.
type Payload interface {
	// Decode replaces the receiver's contents with the length bytes of data.
	Decode(length uint32, data []byte) error
	// Encode returns the exact byte layout Decode accepts.
	Encode() []byte
	// Clear resets the payload to its zero contents.
	Clear()
	// Dump writes the payload fields for diagnostics.
	Dump(w io.Writer) error

	clone() Payload
}

// DecodePayload decodes data according to the chunk type t.
func DecodePayload(t ChunkType, data []byte) (Payload, error) {
	var p Payload
	switch Normalize(t.slug) {
	case Normalize(ChunkIHDR.slug):
		p = &IHDR{}
	case Normalize(ChunkPLTE.slug):
		p = &PLTE{}
	case Normalize(ChunksRGB.slug):
		p = &SRGB{}
	case Normalize(ChunkIDAT.slug):
		p = &IDAT{}
	case Normalize(ChunktEXt.slug):
		p = &TEXT{}
	case Normalize(ChunkIEND.slug):
		p = &IEND{}
	default:
		p = &Raw{}
	}
	if err := p.Decode(uint32(len(data)), data); err != nil {
		return nil, errors.Wrapf(err, "%s", t)
	}
	return p, nil
}

func checkLength(name string, length uint32, data []byte) error {
	if uint64(length) != uint64(len(data)) {
		return errors.Wrapf(ErrMalformedChunk, "%s: declared length %d, got %d bytes", name, length, len(data))
	}
	return nil
}

const ihdrSize = 13

// IHDR is the image header. It must be the first chunk.
type IHDR struct {
	Width             uint32
	Height            uint32
	BitDepth          uint8
	ColorType         uint8
	CompressionMethod uint8
	FilterMethod      uint8
	InterlaceMethod   uint8
}

func (h *IHDR) Decode(length uint32, data []byte) error {
	if err := checkLength("IHDR", length, data); err != nil {
		return err
	}
	if length != ihdrSize {
		return errors.Wrapf(ErrMalformedChunk, "invalid length for IHDR: %d", length)
	}
	*h = IHDR{
		Width:             binary.BigEndian.Uint32(data[0:4]),
		Height:            binary.BigEndian.Uint32(data[4:8]),
		BitDepth:          data[8],
		ColorType:         data[9],
		CompressionMethod: data[10],
		FilterMethod:      data[11],
		InterlaceMethod:   data[12],
	}
	return nil
}

func (h *IHDR) Encode() []byte {
	data := make([]byte, ihdrSize)
	binary.BigEndian.PutUint32(data[0:4], h.Width)
	binary.BigEndian.PutUint32(data[4:8], h.Height)
	data[8] = h.BitDepth
	data[9] = h.ColorType
	data[10] = h.CompressionMethod
	data[11] = h.FilterMethod
	data[12] = h.InterlaceMethod
	return data
}

func (h *IHDR) Clear() { *h = IHDR{} }

func (h *IHDR) Dump(w io.Writer) error {
	_, err := fmt.Fprintf(w, "\t             width: %08X\n"+
		"\t            height: %08X\n"+
		"\t         bit_depth: %X\n"+
		"\t        color_type: %X (%s)\n"+
		"\tcompression_method: %X\n"+
		"\t     filter_method: %X\n"+
		"\t  interlace_method: %X\n",
		h.Width, h.Height, h.BitDepth, h.ColorType, ColorTypeName(h.ColorType),
		h.CompressionMethod, h.FilterMethod, h.InterlaceMethod)
	return err
}

func (h *IHDR) clone() Payload {
	c := *h
	return &c
}

// ColorTypeName names the five color types of the PNG specification.
func ColorTypeName(colorType uint8) string {
	switch colorType {
	case 0:
		return "Greyscale"
	case 2:
		return "Truecolor"
	case 3:
		return "Indexed-color"
	case 4:
		return "Greyscale with alpha"
	case 6:
		return "Truecolor with alpha"
	}
	return "invalid"
}

// RGB is one palette entry.
type RGB struct {
	R, G, B uint8
}

// PLTE is the palette, a sequence of RGB triples.
type PLTE struct {
	Entries []RGB
}

func (p *PLTE) Decode(length uint32, data []byte) error {
	if err := checkLength("PLTE", length, data); err != nil {
		return err
	}
	if length%3 != 0 {
		return errors.Wrapf(ErrMalformedChunk, "PLTE length must be a multiple of 3; got: %d", length)
	}
	p.Entries = make([]RGB, 0, length/3)
	for i := 0; i+2 < len(data); i += 3 {
		p.Entries = append(p.Entries, RGB{R: data[i], G: data[i+1], B: data[i+2]})
	}
	return nil
}

func (p *PLTE) Encode() []byte {
	data := make([]byte, 0, len(p.Entries)*3)
	for _, e := range p.Entries {
		data = append(data, e.R, e.G, e.B)
	}
	return data
}

func (p *PLTE) Clear() { p.Entries = nil }

func (p *PLTE) Dump(w io.Writer) error {
	for i, e := range p.Entries {
		if _, err := fmt.Fprintf(w, "\tPalette%08X:\n\t\t  Red:%02X\n\t\tGreen:%02X\n\t\t Blue:%02X\n",
			i, e.R, e.G, e.B); err != nil {
			return err
		}
	}
	return nil
}

func (p *PLTE) clone() Payload {
	return &PLTE{Entries: append([]RGB(nil), p.Entries...)}
}

// SRGB holds the rendering intent of the sRGB chunk.
type SRGB struct {
	Intent uint8
}

func (s *SRGB) Decode(length uint32, data []byte) error {
	if err := checkLength("sRGB", length, data); err != nil {
		return err
	}
	if length != 1 {
		return errors.Wrapf(ErrMalformedChunk, "sRGB length must be 1 byte; got: %d", length)
	}
	s.Intent = data[0]
	return nil
}

func (s *SRGB) Encode() []byte { return []byte{s.Intent} }

func (s *SRGB) Clear() { s.Intent = 0 }

func (s *SRGB) Dump(w io.Writer) error {
	_, err := fmt.Fprintf(w, "\trendering: %02X\n", s.Intent)
	return err
}

func (s *SRGB) clone() Payload {
	c := *s
	return &c
}

// IDAT holds one fragment of the zlib stream. Fragments concatenate in
// document order.
type IDAT struct {
	Bytes []byte
}

func (d *IDAT) Decode(length uint32, data []byte) error {
	if err := checkLength("IDAT", length, data); err != nil {
		return err
	}
	d.Bytes = bytes.Clone(data)
	return nil
}

func (d *IDAT) Encode() []byte { return bytes.Clone(d.Bytes) }

func (d *IDAT) Clear() { d.Bytes = nil }

func (d *IDAT) Dump(w io.Writer) error {
	_, err := fmt.Fprintf(w, "\tcompressed: %d bytes\n", len(d.Bytes))
	return err
}

func (d *IDAT) clone() Payload { return &IDAT{Bytes: bytes.Clone(d.Bytes)} }

// TEXT is a keyword/text pair. On the wire the keyword is NUL-terminated and
// the text runs to the end of the chunk.
type TEXT struct {
	Keyword string
	Text    []byte

	// unterminated records a payload without a NUL separator, so that it
	// re-encodes verbatim.
	unterminated bool
}

func (t *TEXT) Decode(length uint32, data []byte) error {
	if err := checkLength("tEXt", length, data); err != nil {
		return err
	}
	keyword, text, found := bytes.Cut(data, []byte{0})
	t.Keyword = string(keyword)
	t.Text = bytes.Clone(text)
	t.unterminated = !found
	return nil
}

func (t *TEXT) Encode() []byte {
	data := make([]byte, 0, len(t.Keyword)+1+len(t.Text))
	data = append(data, t.Keyword...)
	if t.unterminated && len(t.Text) == 0 {
		return data
	}
	data = append(data, 0)
	return append(data, t.Text...)
}

func (t *TEXT) Clear() { *t = TEXT{} }

func (t *TEXT) Dump(w io.Writer) error {
	_, err := fmt.Fprintf(w, "\tkeyword: %s\n\t   text: %s\n", t.Keyword, t.Text)
	return err
}

func (t *TEXT) clone() Payload {
	c := *t
	c.Text = bytes.Clone(t.Text)
	return &c
}

// IEND marks the end of the datastream. Its payload is empty.
type IEND struct{}

func (e *IEND) Decode(length uint32, data []byte) error {
	if err := checkLength("IEND", length, data); err != nil {
		return err
	}
	if length != 0 {
		return errors.Wrapf(ErrMalformedChunk, "IEND must be empty; got %d bytes", length)
	}
	return nil
}

func (e *IEND) Encode() []byte { return []byte{} }

func (e *IEND) Clear() {}

func (e *IEND) Dump(io.Writer) error { return nil }

func (e *IEND) clone() Payload { return &IEND{} }

// Raw preserves the payload of any chunk type without a dedicated decoder.
type Raw struct {
	Bytes []byte
}

func (r *Raw) Decode(length uint32, data []byte) error {
	if err := checkLength("chunk", length, data); err != nil {
		return err
	}
	r.Bytes = bytes.Clone(data)
	return nil
}

func (r *Raw) Encode() []byte { return bytes.Clone(r.Bytes) }

func (r *Raw) Clear() { r.Bytes = nil }

func (r *Raw) Dump(w io.Writer) error {
	_, err := fmt.Fprintf(w, "\traw: %d bytes\n", len(r.Bytes))
	return err
}

func (r *Raw) clone() Payload { return &Raw{Bytes: bytes.Clone(r.Bytes)} }
