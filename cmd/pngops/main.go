// Command pngops loads an 8-bit truecolor PNG, optionally inverts or resizes
// it, and writes the result.
//
// Usage:
//
//	pngops [-png in.png] [-out out.png] [-invert] [-scale-h f] [-scale-w f] [-level n] [-dump]
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"pngops.adpollak.net/internal/pngdoc"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, log.Default()); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer, logger *log.Logger) error {
	// Used for default file in cmd line args.
	defaultFilePath := "smiley.png"
	if home, err := os.UserHomeDir(); err == nil {
		defaultFilePath = filepath.Join(home, "Pictures", "smiley.png")
	}

	fs := flag.NewFlagSet("pngops", flag.ContinueOnError)
	pngCLI := fs.String("png", defaultFilePath, "png file to supply")
	out := fs.String("out", "", "output path (default: <input>_out.png)")
	invert := fs.Bool("invert", false, "invert every sample")
	scaleH := fs.Float64("scale-h", 1, "vertical scale factor")
	scaleW := fs.Float64("scale-w", 1, "horizontal scale factor")
	level := fs.Int("level", 0, "zlib compression level (0 = default)")
	dump := fs.Bool("dump", false, "print chunks and scanlines to stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	doc, err := pngdoc.Open(*pngCLI, &pngdoc.Options{CompressionLevel: *level, Logger: logger})
	if err != nil {
		return err
	}

	transformed := false
	if *invert {
		if err := doc.Invert(); err != nil {
			return err
		}
		transformed = true
	}
	if *scaleH != 1 || *scaleW != 1 {
		if err := doc.Resize(*scaleH, *scaleW); err != nil {
			return err
		}
		transformed = true
	}

	if *dump {
		if err := doc.Dump(stdout); err != nil {
			return err
		}
	}

	if !transformed {
		logger.Println("PNG file parsed successfully!")
		return nil
	}
	dst := *out
	if dst == "" {
		dst = outputPath(*pngCLI)
	}
	if err := doc.Write(dst); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %dx%d\n", dst, doc.Width(), doc.Height())
	return nil
}

// outputPath derives the default output path from the input path.
func outputPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "_out.png"
}
