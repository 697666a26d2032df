// Package pngdoc ties the PNG container, the scanline filters and the pixel
// transforms together into a mutable document.
//
// A Document is built by Load or Open, changed in place by Invert and
// Resize, and written back out with Bytes, WriteTo or Write. It owns every
// buffer it holds; accessors hand out copies.
package pngdoc

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"log"
	"os"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"pngops.adpollak.net/internal/chunk"
	"pngops.adpollak.net/internal/deflate"
	"pngops.adpollak.net/internal/filter"
	"pngops.adpollak.net/internal/images"
)

// Provenance recorded in a tEXt chunk by every transform.
const (
	ProvenanceKeyword = "pngops"
	ProvenanceText    = "pixel transform applied by pngops"
)

// maxInflateRatio is the largest expansion a zlib stream can achieve; an
// IHDR claiming more data than the IDAT chunks could ever hold is rejected
// before allocating.
const maxInflateRatio = 1032

var (
	ErrUnsupportedColorFormat = images.ErrUnsupportedColorFormat
	ErrIO                     = errors.New("pngdoc: i/o failure")
)

// Options configures a Document. A nil *Options selects the defaults.
type Options struct {
	// CompressionLevel is the zlib level used when re-encoding image data.
	// Zero selects deflate.DefaultCompression.
	CompressionLevel int
	// Logger receives progress messages. Nil discards them.
	Logger *log.Logger
}

// Document is a parsed PNG datastream with its pixel data.
type Document struct {
	chunks chunk.List
	width  int
	height int

	decoded    []byte // filtered scanlines as inflated from IDAT
	unfiltered []byte // true samples, produced on first use

	level  int
	logger *log.Logger
}

func newDocument(opts *Options) *Document {
	d := &Document{
		level:  deflate.DefaultCompression,
		logger: log.New(io.Discard, "", 0),
	}
	if opts != nil {
		if opts.CompressionLevel != 0 {
			d.level = opts.CompressionLevel
		}
		if opts.Logger != nil {
			d.logger = opts.Logger
		}
	}
	return d
}

// Open reads the file at path and loads it.
func Open(path string, opts *Options) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrIO, "%v", err)
	}
	d, err := Load(data, opts)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	d.logger.Printf("Successfully opened %s\n", path)
	return d, nil
}

// Load parses a PNG datastream, checks that it is 8-bit non-interlaced
// truecolor, and inflates its image data. No Document is returned on error.
func Load(data []byte, opts *Options) (*Document, error) {
	d := newDocument(opts)

	chunks, err := chunk.Parse(data)
	if err != nil {
		return nil, err
	}
	d.logger.Printf("Successfully validated PNG signature, read %d chunks\n", len(chunks))

	ihdr, ok := chunks[0].Payload.(*chunk.IHDR)
	if !ok {
		return nil, errors.Wrapf(chunk.ErrMalformedContainer, "first chunk is %s, expected IHDR", chunks[0].Type)
	}
	d.logger.Printf("IHDR data: %+v\n", *ihdr)
	if err := images.CheckFormat(ihdr); err != nil {
		return nil, err
	}

	// idat is a buffer to hold idat chunk data
	var idat bytes.Buffer
	for _, c := range chunks {
		if p, ok := c.Payload.(*chunk.IDAT); ok {
			idat.Write(p.Bytes)
		}
	}

	// Each row is a filter-type byte plus three samples per pixel.
	width, height := uint64(ihdr.Width), uint64(ihdr.Height)
	size := width*height*filter.BytesPerPixel + height
	if size > uint64(idat.Len())*maxInflateRatio+64 {
		return nil, errors.Wrapf(deflate.ErrDecompression, "%dx%d image needs %d bytes, %d compressed bytes cannot hold them",
			width, height, size, idat.Len())
	}
	decoded, err := deflate.Inflate(idat.Bytes(), int(size))
	if err != nil {
		return nil, err
	}
	d.logger.Printf("Inflated %d IDAT bytes into %d bytes\n", idat.Len(), len(decoded))

	d.chunks = chunks
	d.width = int(width)
	d.height = int(height)
	d.decoded = decoded
	return d, nil
}

// Width returns the image width in pixels.
func (d *Document) Width() int { return d.width }

// Height returns the image height in pixels.
func (d *Document) Height() int { return d.height }

// Chunks returns a deep copy of the chunk list.
func (d *Document) Chunks() chunk.List { return d.chunks.Clone() }

// Filtered returns a copy of the decompressed, still filtered scanlines.
func (d *Document) Filtered() []byte { return bytes.Clone(d.decoded) }

// Pixels returns a copy of the unfiltered scanlines: a zero filter-type byte
// followed by width*3 samples for each row.
func (d *Document) Pixels() ([]byte, error) {
	p, err := d.pixels()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(p), nil
}

func (d *Document) pixels() ([]byte, error) {
	if d.unfiltered == nil {
		p, err := filter.Defilter(d.decoded, d.width, d.height)
		if err != nil {
			return nil, err
		}
		d.unfiltered = p
	}
	return d.unfiltered, nil
}

// Image returns the pixels as an image.Image.
func (d *Document) Image() (image.Image, error) {
	p, err := d.pixels()
	if err != nil {
		return nil, err
	}
	return images.CreateImage(p, *d.header())
}

func (d *Document) header() *chunk.IHDR {
	return d.chunks[0].Payload.(*chunk.IHDR)
}

// Invert replaces every sample with its complement.
func (d *Document) Invert() error {
	p, err := d.pixels()
	if err != nil {
		return err
	}
	inverted, err := images.Invert(p, d.width, d.height)
	if err != nil {
		return err
	}
	return d.commit("invert", inverted, d.width, d.height)
}

// Resize scales the image to floor(height*scaleH) by floor(width*scaleW)
// pixels with an area-weighted average, and updates IHDR to match.
func (d *Document) Resize(scaleH, scaleW float64) error {
	p, err := d.pixels()
	if err != nil {
		return err
	}
	resized, width, height, err := images.Resize(p, d.width, d.height, scaleH, scaleW)
	if err != nil {
		return err
	}
	return d.commit("resize", resized, width, height)
}

// commit re-encodes pixels and swaps them into the document. Nothing is
// changed unless every step succeeds.
func (d *Document) commit(op string, pixels []byte, width, height int) error {
	filtered, err := filter.Filter(pixels, width, height)
	if err != nil {
		return errors.WithMessage(err, op)
	}
	compressed, err := deflate.Deflate(filtered, d.level)
	if err != nil {
		return errors.WithMessage(err, op)
	}

	chunks := d.chunks.RemoveMatching(chunk.OfType(chunk.ChunkIDAT))
	if width != d.width || height != d.height {
		hdr := chunks[0].Clone()
		ihdr := hdr.Payload.(*chunk.IHDR)
		ihdr.Width, ihdr.Height = uint32(width), uint32(height)
		hdr.Refresh()
		chunks[0] = hdr
	}
	chunks = chunks.InsertBeforeLast(chunk.New(chunk.ChunkIDAT, &chunk.IDAT{Bytes: compressed}))
	chunks = chunks.InsertBeforeLast(chunk.New(chunk.ChunktEXt, &chunk.TEXT{
		Keyword: ProvenanceKeyword,
		Text:    []byte(ProvenanceText),
	}))

	d.logger.Printf("%s: %dx%d -> %dx%d, IDAT %d bytes\n", op, d.width, d.height, width, height, len(compressed))
	d.chunks = chunks
	d.width, d.height = width, height
	d.decoded = filtered
	d.unfiltered = pixels
	return nil
}

// Bytes serializes the document.
func (d *Document) Bytes() ([]byte, error) {
	return chunk.Serialize(d.chunks)
}

// WriteTo writes the serialized document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	data, err := d.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), errors.Wrapf(ErrIO, "%v", err)
	}
	return int64(n), nil
}

// Write atomically replaces the file at path with the serialized document.
func (d *Document) Write(path string) error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(ErrIO, "%v", err)
	}
	d.logger.Printf("Wrote %d bytes to %s\n", len(data), path)
	return nil
}

// Dump writes every chunk and the filtered scanlines in hex, for
// diagnostics.
func (d *Document) Dump(w io.Writer) error {
	if err := d.chunks.Dump(w); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Decompressed data size: %d bytes\nDecompressed data:\n", len(d.decoded)); err != nil {
		return err
	}
	stride := filter.Stride(d.width)
	for start := 0; start < len(d.decoded); start += stride {
		if _, err := fmt.Fprintf(w, "\t% X\n", d.decoded[start:start+stride]); err != nil {
			return err
		}
	}
	return nil
}
