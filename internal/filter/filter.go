// Package filter implements the PNG scanline filters for 8-bit truecolor
// images. Each scanline is a filter-type byte followed by width*3 samples.
//
// Defilter reverses the filters of a decoded datastream. Filter chooses a
// filter for every row when encoding, using the minimum sum of absolute
// residuals, which is a common proxy for compressed size.
package filter

import (
	"github.com/pkg/errors"
)

// Filter types as stored in the first byte of each scanline.
const (
	None byte = iota
	Sub
	Up
	Average
	Paeth
)

// BytesPerPixel is the distance to the corresponding byte of the pixel on
// the left: three 8-bit samples per truecolor pixel.
const BytesPerPixel = 3

var ErrBufferSize = errors.New("filter: buffer size does not match image dimensions")

// Stride returns the length of one scanline including its filter-type byte.
func Stride(width int) int {
	return width*BytesPerPixel + 1
}

func checkSize(buf []byte, width, height int) error {
	if width < 0 || height < 0 || len(buf) != Stride(width)*height {
		return errors.Wrapf(ErrBufferSize, "%d bytes for %dx%d", len(buf), width, height)
	}
	return nil
}

// Defilter reconstructs the true samples of a filtered buffer. The result
// has the same shape with every filter-type byte set to None.
func Defilter(filtered []byte, width, height int) ([]byte, error) {
	if err := checkSize(filtered, width, height); err != nil {
		return nil, err
	}
	stride := Stride(width)
	out := make([]byte, len(filtered))
	var prev []byte
	for y := 0; y < height; y++ {
		start := y * stride
		row := out[start+1 : start+stride]
		DefilterRow(filtered[start], row, filtered[start+1:start+stride], prev)
		prev = row
	}
	return out, nil
}

// DefilterRow writes the reconstruction of src into dst. prev is the already
// reconstructed previous row, or nil for the first row. An unknown filter
// type is treated as None.
func DefilterRow(filterType byte, dst, src, prev []byte) {
	switch filterType {
	case Sub:
		for x := range src {
			dst[x] = src[x] + left(dst, x)
		}
	case Up:
		for x := range src {
			dst[x] = src[x] + above(prev, x)
		}
	case Average:
		for x := range src {
			dst[x] = src[x] + byte((int(left(dst, x))+int(above(prev, x)))>>1)
		}
	case Paeth:
		for x := range src {
			dst[x] = src[x] + PaethPredictor(left(dst, x), above(prev, x), aboveLeft(prev, x))
		}
	default:
		copy(dst, src)
	}
}

// Filter encodes an unfiltered buffer, choosing the filter of each row
// independently. Filter-type bytes of the input are ignored.
func Filter(unfiltered []byte, width, height int) ([]byte, error) {
	if err := checkSize(unfiltered, width, height); err != nil {
		return nil, err
	}
	stride := Stride(width)
	out := make([]byte, len(unfiltered))
	candidate := make([]byte, stride-1)
	var prev []byte
	for y := 0; y < height; y++ {
		start := y * stride
		cur := unfiltered[start+1 : start+stride]
		dst := out[start+1 : start+stride]

		// Only a strictly smaller score replaces the best so far, so ties go
		// to the lowest filter type.
		best, bestScore := None, -1
		for f := None; f <= Paeth; f++ {
			FilterRow(f, candidate, cur, prev)
			if s := Score(candidate); bestScore < 0 || s < bestScore {
				best, bestScore = f, s
				copy(dst, candidate)
			}
		}
		out[start] = best
		prev = cur
	}
	return out, nil
}

// FilterRow writes the residuals of cur under filterType into dst. prev is
// the unfiltered previous row, or nil for the first row.
func FilterRow(filterType byte, dst, cur, prev []byte) {
	switch filterType {
	case Sub:
		for x := range cur {
			dst[x] = cur[x] - left(cur, x)
		}
	case Up:
		for x := range cur {
			dst[x] = cur[x] - above(prev, x)
		}
	case Average:
		for x := range cur {
			dst[x] = cur[x] - byte((int(left(cur, x))+int(above(prev, x)))>>1)
		}
	case Paeth:
		for x := range cur {
			dst[x] = cur[x] - PaethPredictor(left(cur, x), above(prev, x), aboveLeft(prev, x))
		}
	default:
		copy(dst, cur)
	}
}

// Score sums the residuals of a filtered row read as signed bytes, i.e.
// min(b, 256-b) per byte.
func Score(row []byte) int {
	sum := 0
	for _, b := range row {
		v := int(int8(b))
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum
}

// PaethPredictor returns whichever of left, up and upLeft is closest to
// left+up-upLeft. Ties go to left, then up.
func PaethPredictor(left, up, upLeft byte) byte {
	p := int(left) + int(up) - int(upLeft)
	pLeft := abs(p - int(left))
	pUp := abs(p - int(up))
	pUpLeft := abs(p - int(upLeft))
	if pLeft <= pUp && pLeft <= pUpLeft {
		return left
	}
	if pUp <= pUpLeft {
		return up
	}
	return upLeft
}

func left(row []byte, x int) byte {
	if x < BytesPerPixel {
		return 0
	}
	return row[x-BytesPerPixel]
}

func above(prev []byte, x int) byte {
	if prev == nil {
		return 0
	}
	return prev[x]
}

func aboveLeft(prev []byte, x int) byte {
	if prev == nil || x < BytesPerPixel {
		return 0
	}
	return prev[x-BytesPerPixel]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
