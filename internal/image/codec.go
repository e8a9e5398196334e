package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotImage is returned when the input bytes are not an image.
var ErrNotImage = errors.New("image: not an image")

// ErrDecode is returned when bytes sniff as an image but cannot be decoded.
var ErrDecode = errors.New("image: decode failed")

// DefaultJPEGQuality is used for every non-PNG output.
const DefaultJPEGQuality = 92

const (
	mimePNG  = "image/png"
	mimeJPEG = "image/jpeg"
)

// Sniff returns the MIME type of data, or ErrNotImage if it is not an
// image type.
func Sniff(data []byte) (string, error) {
	m := mimetype.Detect(data)
	if !strings.HasPrefix(m.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, m.String())
	}
	return m.String(), nil
}

// Decode sniffs and decodes an encoded image, applying the EXIF orientation
// tag so that the pixels match what a viewer shows.
func Decode(data []byte) (*image.RGBA, string, error) {
	mt, err := Sniff(data)
	if err != nil {
		return nil, "", err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, mt, fmt.Errorf("%w: %s: %v", ErrDecode, mt, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, mt, ErrEmptyImage
	}
	return ToRGBA(img), mt, nil
}

// Load reads and decodes the image at path.
func Load(path string) (*image.RGBA, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	return Decode(data)
}

// OutputMIME returns the MIME type a scan of an input with the given type is
// written as: PNG stays PNG, everything else becomes JPEG.
func OutputMIME(inputMIME string) string {
	if inputMIME == mimePNG {
		return mimePNG
	}
	return mimeJPEG
}

// Encode writes img in the output format chosen for inputMIME and returns
// the MIME type written. quality applies to JPEG only; values outside
// 1..100 fall back to DefaultJPEGQuality.
func Encode(w io.Writer, img image.Image, inputMIME string, quality int) (string, error) {
	out := OutputMIME(inputMIME)
	var err error
	if out == mimePNG {
		err = imaging.Encode(w, img, imaging.PNG)
	} else {
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", out, err)
	}
	return out, nil
}

// ScanFileName derives the output file name for a scan: the last extension
// is replaced by "-scan" plus the extension matching outputMIME.
func ScanFileName(name, outputMIME string) string {
	base := filepath.Base(name)
	if name == "" || base == "." || base == string(filepath.Separator) {
		base = "receipt"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	ext := ".jpg"
	if outputMIME == mimePNG {
		ext = ".png"
	}
	return base + "-scan" + ext
}

// SupportedFormats returns the file extensions accepted by the CLI when it
// expands a directory.
func SupportedFormats() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}
}

// IsSupportedFormat checks if the given path has a supported image extension.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
