package posters

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/buckket/go-blurhash"
	_ "github.com/chai2010/webp"
)

// posterRatio is the width/height ratio posters are cropped to on the CDN.
const posterRatio = 62.0 / 85.0

const yComponents = 9

var xComponents = int(math.Round(yComponents * posterRatio))

// BlurHash decodes a JPEG, PNG or WebP poster and encodes its blur hash placeholder.
func BlurHash(r io.Reader) (string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("decode poster: %w", err)
	}
	hash, err := blurhash.Encode(xComponents, yComponents, img)
	if err != nil {
		return "", fmt.Errorf("encode %s blur hash: %w", format, err)
	}
	return hash, nil
}
