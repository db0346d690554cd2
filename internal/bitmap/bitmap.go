// Package bitmap turns image locators handed over by the host into decoded bitmaps.
package bitmap

import (
	"errors"
	"fmt"
	"image"
	"net/url"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedScheme is returned for locators that do not point at local storage.
var ErrUnsupportedScheme = errors.New("unsupported image uri scheme")

// ResolvePath returns the local file path referenced by uri. Bare paths are
// accepted as URIs without a scheme.
func ResolvePath(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse image uri: %w", err)
	}
	switch parsed.Scheme {
	case "", "file":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}
	if parsed.Path == "" {
		return "", fmt.Errorf("image uri %q has no path", uri)
	}
	return parsed.Path, nil
}

// DecodeFile resolves uri and decodes the file it references. EXIF orientation
// is ignored; callers receive the pixels as stored.
func DecodeFile(uri string) (image.Image, error) {
	path, err := ResolvePath(uri)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// FileURI builds the file:// locator for an absolute path.
func FileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: path}).String()
}
