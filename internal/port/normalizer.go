package port

import (
	"image"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
)

// Encoder turns a pixel buffer into canonical WebP bytes, embedding exif
// when it is not nil.
type Encoder interface {
	Encode(img image.Image, exif []byte) ([]byte, error)
}

type Normalizer interface {
	Normalize(data []byte, filename string) (*domain.NormalizedImage, error)
	Renormalize(data []byte, key string) (*domain.NormalizedImage, error)
}
