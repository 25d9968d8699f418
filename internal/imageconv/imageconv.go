// Package imageconv normalizes uploaded scans for backends that only accept
// web image formats.
package imageconv

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/tiff"
)

const fallbackMIME = "image/png"

// IsTIFF reports whether path has a TIFF extension.
func IsTIFF(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}

// TIFFToPNG decodes src and writes it as a PNG temp file in dir (os.TempDir
// when empty). cleanup removes the file and is safe to call more than once;
// it is a no-op when err != nil.
func TIFFToPNG(src, dir string) (pngPath string, cleanup func(), err error) {
	noop := func() {}

	in, err := os.Open(src)
	if err != nil {
		return "", noop, fmt.Errorf("open tiff: %w", err)
	}
	defer in.Close()

	img, err := tiff.Decode(in)
	if err != nil {
		return "", noop, fmt.Errorf("decode tiff: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out, err := os.CreateTemp(dir, base+"_converted-*.png")
	if err != nil {
		return "", noop, fmt.Errorf("create png: %w", err)
	}
	pngPath = out.Name()
	cleanup = func() { _ = os.Remove(pngPath) }

	if err := png.Encode(out, img); err != nil {
		out.Close()
		cleanup()
		return "", noop, fmt.Errorf("encode png: %w", err)
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("close png: %w", err)
	}

	return pngPath, cleanup, nil
}

// DetectMIME sniffs the file content, falling back to image/png when the
// type is unknown.
func DetectMIME(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil || mt == nil {
		return fallbackMIME
	}
	if mt.Is("application/octet-stream") {
		return fallbackMIME
	}
	return mt.String()
}
