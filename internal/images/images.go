// Package images holds the pixel-domain side of the codec: transforms that
// operate on unfiltered 8-bit truecolor scanlines, and conversion of those
// scanlines into an image.Image.
//
// An unfiltered buffer has the scanline layout of the decompressed
// datastream (one filter-type byte followed by width*3 samples per row)
// with every filter-type byte zero and the samples holding true values.
package images

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"pngops.adpollak.net/internal/chunk"
	"pngops.adpollak.net/internal/filter"
)

var (
	ErrUnsupportedColorFormat = errors.New("images: unsupported color format")
	ErrInvalidScale           = errors.New("images: invalid scale factor")
)

const (
	// maxPixels bounds the size of a resized image.
	maxPixels = 1 << 28
	// truncEpsilon absorbs float error so that an exact integer mean such as
	// v*a/a is not truncated to v-1.
	truncEpsilon = 1e-9
)

// CheckFormat reports whether ihdr describes an image this package can
// handle: 8-bit, non-interlaced truecolor.
func CheckFormat(ihdr *chunk.IHDR) error {
	switch {
	case ihdr.ColorType != 2:
		return errors.Wrapf(ErrUnsupportedColorFormat, "ColorType: %s (%d)", chunk.ColorTypeName(ihdr.ColorType), ihdr.ColorType)
	case ihdr.BitDepth != 8:
		return errors.Wrapf(ErrUnsupportedColorFormat, "BitDepth: %d", ihdr.BitDepth)
	case ihdr.InterlaceMethod != 0:
		return errors.Wrapf(ErrUnsupportedColorFormat, "InterlaceMethod: %d", ihdr.InterlaceMethod)
	}
	return nil
}

// CreateImage takes in unfiltered pixel data and IHDR chunk data to
// recreate the PNG image.
func CreateImage(pixels []byte, ihdr chunk.IHDR) (image.Image, error) {
	if err := CheckFormat(&ihdr); err != nil {
		return nil, err
	}
	width, height := int(ihdr.Width), int(ihdr.Height)
	if err := checkSize(pixels, width, height); err != nil {
		return nil, err
	}
	return handleTruecolor(pixels, width, height), nil
}

func handleTruecolor(pixels []byte, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	stride := filter.Stride(width)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			// Skip the filter-type byte at the start of the scanline.
			offset := r*stride + 1 + c*filter.BytesPerPixel
			img.SetNRGBA(c, r, color.NRGBA{R: pixels[offset], G: pixels[offset+1], B: pixels[offset+2], A: 0xFF})
		}
	}
	return img
}

// Invert returns a new buffer with every sample replaced by its complement.
// Filter-type bytes stay zero.
func Invert(pixels []byte, width, height int) ([]byte, error) {
	if err := checkSize(pixels, width, height); err != nil {
		return nil, err
	}
	stride := filter.Stride(width)
	out := make([]byte, len(pixels))
	for i, v := range pixels {
		if i%stride == 0 {
			continue
		}
		out[i] = 255 - v
	}
	return out, nil
}

// Resize resamples pixels to floor(height*scaleH) rows of
// floor(width*scaleW) pixels. Each destination pixel covers a rectangle of
// source space; every channel is the mean of the source pixels under it,
// weighted by overlap area and truncated to an integer.
func Resize(pixels []byte, width, height int, scaleH, scaleW float64) ([]byte, int, int, error) {
	if err := checkSize(pixels, width, height); err != nil {
		return nil, 0, 0, err
	}
	if !validScale(scaleH) || !validScale(scaleW) {
		return nil, 0, 0, errors.Wrapf(ErrInvalidScale, "scale %gx%g", scaleH, scaleW)
	}
	fh := math.Floor(float64(height) * scaleH)
	fw := math.Floor(float64(width) * scaleW)
	if fh < 1 || fw < 1 || fh*fw > maxPixels {
		return nil, 0, 0, errors.Wrapf(ErrInvalidScale, "%dx%d scaled by %gx%g gives %gx%g", width, height, scaleW, scaleH, fw, fh)
	}
	newHeight, newWidth := int(fh), int(fw)

	srcStride := filter.Stride(width)
	dstStride := filter.Stride(newWidth)
	out := make([]byte, newHeight*dstStride)
	for y := 0; y < newHeight; y++ {
		top := float64(y) / scaleH
		bottom := float64(y+1) / scaleH
		sy0, sy1 := int(top), min(int(bottom)+1, height)
		for x := 0; x < newWidth; x++ {
			left := float64(x) / scaleW
			right := float64(x+1) / scaleW
			sx0, sx1 := int(left), min(int(right)+1, width)

			var sum [filter.BytesPerPixel]float64
			var total float64
			for sy := sy0; sy < sy1; sy++ {
				dy := math.Min(bottom, float64(sy+1)) - math.Max(top, float64(sy))
				if dy <= 0 {
					continue
				}
				for sx := sx0; sx < sx1; sx++ {
					dx := math.Min(right, float64(sx+1)) - math.Max(left, float64(sx))
					if dx <= 0 {
						continue
					}
					area := dx * dy
					src := sy*srcStride + 1 + sx*filter.BytesPerPixel
					for c := range sum {
						sum[c] += float64(pixels[src+c]) * area
					}
					total += area
				}
			}

			dst := y*dstStride + 1 + x*filter.BytesPerPixel
			for c := range sum {
				out[dst+c] = uint8(math.Min(sum[c]/total+truncEpsilon, 255))
			}
		}
	}
	return out, newWidth, newHeight, nil
}

func validScale(s float64) bool {
	return s > 0 && !math.IsInf(s, 0)
}

func checkSize(pixels []byte, width, height int) error {
	if width < 0 || height < 0 || len(pixels) != filter.Stride(width)*height {
		return errors.Wrapf(filter.ErrBufferSize, "%d bytes for %dx%d", len(pixels), width, height)
	}
	return nil
}
