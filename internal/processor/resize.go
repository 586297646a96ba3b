package processor

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxWidth    = 1920
	DefaultJPEGQuality = 85
)

// Resize decodes data, scales it down to maxWidth keeping the aspect ratio
// and encodes the result as JPEG. Narrower images keep their size.
func Resize(data []byte, maxWidth, quality int) ([]byte, error) {
	const op = "processor.Resize"

	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	img := src
	if src.Bounds().Dx() > maxWidth {
		img = imaging.Resize(src, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("%s: encode: %w", op, err)
	}
	return buf.Bytes(), nil
}
