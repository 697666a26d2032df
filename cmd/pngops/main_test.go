package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"pngops.adpollak.net/internal/images"
)

// createTestPNG writes an opaque 4x2 gradient to dir and returns its path.
func createTestPNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 60), G: uint8(y * 100), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, "input.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating test PNG: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		t.Fatalf("encoding test PNG: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing test PNG: %v", err)
	}
	return path
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestRunInvert(t *testing.T) {
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	out := filepath.Join(dir, "inverted.png")

	var stdout bytes.Buffer
	if err := run([]string{"-png", in, "-out", out, "-invert"}, &stdout, quiet()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "inverted.png: 4x2") {
		t.Errorf("stdout = %q", stdout.String())
	}
	img := decodeFile(t, out)
	want := color.RGBA{255 - 180, 255 - 100, 127, 255}
	if got := color.RGBAModel.Convert(img.At(3, 1)); got != want {
		t.Errorf("At(3, 1) = %v, want %v", got, want)
	}
}

func TestRunResizeDefaultOutput(t *testing.T) {
	dir := t.TempDir()
	in := createTestPNG(t, dir)

	if err := run([]string{"-png", in, "-scale-h", "0.5", "-scale-w", "0.5"}, io.Discard, quiet()); err != nil {
		t.Fatalf("run: %v", err)
	}
	img := decodeFile(t, filepath.Join(dir, "input_out.png"))
	if got := img.Bounds(); got != image.Rect(0, 0, 2, 1) {
		t.Errorf("Bounds = %v, want 2x1", got)
	}
}

func TestRunWithoutTransformWritesNothing(t *testing.T) {
	dir := t.TempDir()
	in := createTestPNG(t, dir)

	var stdout, logs bytes.Buffer
	if err := run([]string{"-png", in, "-dump"}, &stdout, log.New(&logs, "", 0)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "= IHDR") {
		t.Errorf("dump output missing IHDR:\n%s", stdout.String())
	}
	if !strings.Contains(logs.String(), "PNG file parsed successfully!") {
		t.Errorf("log = %q", logs.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "input_out.png")); !os.IsNotExist(err) {
		t.Errorf("output file created without a transform (stat error %v)", err)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	in := createTestPNG(t, dir)

	if err := run([]string{"-png", filepath.Join(dir, "missing.png")}, io.Discard, quiet()); err == nil {
		t.Error("run with a missing file succeeded")
	}
	if err := run([]string{"-png", in, "-scale-h", "0"}, io.Discard, quiet()); !errors.Is(err, images.ErrInvalidScale) {
		t.Errorf("run error = %v, want ErrInvalidScale", err)
	}
	if err := run([]string{"-no-such-flag"}, io.Discard, quiet()); err == nil {
		t.Error("run with an unknown flag succeeded")
	}
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a.png", "a_out.png"},
		{"/tmp/pic.PNG", "/tmp/pic_out.png"},
		{"noext", "noext_out.png"},
	}
	for _, tt := range tests {
		if got := outputPath(tt.in); got != tt.want {
			t.Errorf("outputPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
