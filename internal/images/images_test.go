package images

import (
	"bytes"
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"pngops.adpollak.net/internal/chunk"
	"pngops.adpollak.net/internal/filter"
)

// scanlines builds an unfiltered buffer from rows of samples.
func scanlines(rows ...[]byte) []byte {
	var out []byte
	for _, r := range rows {
		out = append(out, 0)
		out = append(out, r...)
	}
	return out
}

func randomPixels(rng *rand.Rand, width, height int) []byte {
	buf := make([]byte, filter.Stride(width)*height)
	rng.Read(buf)
	for y := 0; y < height; y++ {
		buf[y*filter.Stride(width)] = 0
	}
	return buf
}

func TestInvert(t *testing.T) {
	in := scanlines([]byte{0, 1, 2, 253, 254, 255}, []byte{128, 127, 10, 20, 30, 40})
	want := scanlines([]byte{255, 254, 253, 2, 1, 0}, []byte{127, 128, 245, 235, 225, 215})
	got, err := Invert(in, 2, 2)
	if err != nil {
		t.Fatalf("Invert: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Invert = %v, want %v", got, want)
	}
	if in[1] != 0 {
		t.Error("Invert modified its input")
	}
}

func TestInvertTwiceIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, dim := range [][2]int{{0, 1}, {1, 1}, {3, 2}, {7, 5}} {
		in := randomPixels(rng, dim[0], dim[1])
		once, err := Invert(in, dim[0], dim[1])
		if err != nil {
			t.Fatalf("Invert: %v", err)
		}
		twice, err := Invert(once, dim[0], dim[1])
		if err != nil {
			t.Fatalf("Invert: %v", err)
		}
		if !bytes.Equal(twice, in) {
			t.Errorf("%dx%d: Invert(Invert(p)) != p", dim[0], dim[1])
		}
	}
}

func TestResizeIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, dim := range [][2]int{{1, 1}, {2, 2}, {5, 3}, {3, 7}, {16, 9}} {
		in := randomPixels(rng, dim[0], dim[1])
		out, w, h, err := Resize(in, dim[0], dim[1], 1.0, 1.0)
		if err != nil {
			t.Fatalf("Resize: %v", err)
		}
		if w != dim[0] || h != dim[1] {
			t.Errorf("Resize(1, 1) dims = %dx%d, want %dx%d", w, h, dim[0], dim[1])
		}
		if !bytes.Equal(out, in) {
			t.Errorf("%dx%d: Resize(1, 1) changed pixels", dim[0], dim[1])
		}
	}
}

func TestResizeDownAverages(t *testing.T) {
	in := scanlines(
		[]byte{10, 0, 255, 20, 1, 255},
		[]byte{30, 2, 255, 41, 4, 254},
	)
	out, w, h, err := Resize(in, 2, 2, 0.5, 0.5)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w != 1 || h != 1 {
		t.Fatalf("dims = %dx%d, want 1x1", w, h)
	}
	// (10+20+30+41)/4 = 25.25, (0+1+2+4)/4 = 1.75, (255*3+254)/4 = 254.75
	if want := []byte{0, 25, 1, 254}; !bytes.Equal(out, want) {
		t.Errorf("Resize = %v, want %v", out, want)
	}
}

func TestResizeHorizontalOnly(t *testing.T) {
	in := scanlines([]byte{0, 0, 0, 100, 100, 100, 7, 8, 9, 9, 10, 11})
	out, w, h, err := Resize(in, 4, 1, 1.0, 0.5)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w != 2 || h != 1 {
		t.Fatalf("dims = %dx%d, want 2x1", w, h)
	}
	if want := scanlines([]byte{50, 50, 50, 8, 9, 10}); !bytes.Equal(out, want) {
		t.Errorf("Resize = %v, want %v", out, want)
	}
}

func TestResizeUpReplicates(t *testing.T) {
	in := scanlines(
		[]byte{1, 2, 3, 4, 5, 6},
		[]byte{7, 8, 9, 10, 11, 12},
	)
	out, w, h, err := Resize(in, 2, 2, 3, 2)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w != 4 || h != 6 {
		t.Fatalf("dims = %dx%d, want 4x6", w, h)
	}
	top := []byte{1, 2, 3, 1, 2, 3, 4, 5, 6, 4, 5, 6}
	bottom := []byte{7, 8, 9, 7, 8, 9, 10, 11, 12, 10, 11, 12}
	want := scanlines(top, top, top, bottom, bottom, bottom)
	if !bytes.Equal(out, want) {
		t.Errorf("Resize =\n%v\nwant\n%v", out, want)
	}
}

func TestResizeFloorsDimensions(t *testing.T) {
	in := make([]byte, filter.Stride(3)*3)
	_, w, h, err := Resize(in, 3, 3, 0.5, 0.9)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w != 2 || h != 1 {
		t.Errorf("dims = %dx%d, want 2x1", w, h)
	}
}

func TestResizeInvalidScale(t *testing.T) {
	in := make([]byte, filter.Stride(2)*2)
	scales := [][2]float64{
		{0, 1},
		{1, 0},
		{-1, 1},
		{math.NaN(), 1},
		{1, math.Inf(1)},
		{0.1, 1}, // rounds down to zero rows
	}
	for _, s := range scales {
		if _, _, _, err := Resize(in, 2, 2, s[0], s[1]); !errors.Is(err, ErrInvalidScale) {
			t.Errorf("Resize(%g, %g) error = %v, want ErrInvalidScale", s[0], s[1], err)
		}
	}
}

func TestBufferSizeChecked(t *testing.T) {
	if _, err := Invert(make([]byte, 5), 2, 1); !errors.Is(err, filter.ErrBufferSize) {
		t.Errorf("Invert error = %v, want ErrBufferSize", err)
	}
	if _, _, _, err := Resize(make([]byte, 5), 2, 1, 1, 1); !errors.Is(err, filter.ErrBufferSize) {
		t.Errorf("Resize error = %v, want ErrBufferSize", err)
	}
}

func TestCreateImage(t *testing.T) {
	pixels := scanlines(
		[]byte{255, 0, 0, 0, 255, 0},
		[]byte{0, 0, 255, 1, 2, 3},
	)
	img, err := CreateImage(pixels, chunk.IHDR{Width: 2, Height: 2, BitDepth: 8, ColorType: 2})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if got := img.Bounds(); got != image.Rect(0, 0, 2, 2) {
		t.Errorf("Bounds = %v", got)
	}
	tests := []struct {
		x, y int
		want color.NRGBA
	}{
		{0, 0, color.NRGBA{255, 0, 0, 255}},
		{1, 0, color.NRGBA{0, 255, 0, 255}},
		{0, 1, color.NRGBA{0, 0, 255, 255}},
		{1, 1, color.NRGBA{1, 2, 3, 255}},
	}
	for _, tt := range tests {
		if got := color.NRGBAModel.Convert(img.At(tt.x, tt.y)); got != tt.want {
			t.Errorf("At(%d, %d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestCheckFormat(t *testing.T) {
	tests := []struct {
		ihdr chunk.IHDR
		ok   bool
	}{
		{chunk.IHDR{BitDepth: 8, ColorType: 2}, true},
		{chunk.IHDR{BitDepth: 16, ColorType: 2}, false},
		{chunk.IHDR{BitDepth: 8, ColorType: 6}, false},
		{chunk.IHDR{BitDepth: 8, ColorType: 3}, false},
		{chunk.IHDR{BitDepth: 8, ColorType: 0}, false},
		{chunk.IHDR{BitDepth: 8, ColorType: 2, InterlaceMethod: 1}, false},
	}
	for _, tt := range tests {
		err := CheckFormat(&tt.ihdr)
		if tt.ok && err != nil {
			t.Errorf("CheckFormat(%+v) = %v, want nil", tt.ihdr, err)
		}
		if !tt.ok && !errors.Is(err, ErrUnsupportedColorFormat) {
			t.Errorf("CheckFormat(%+v) = %v, want ErrUnsupportedColorFormat", tt.ihdr, err)
		}
	}
}
