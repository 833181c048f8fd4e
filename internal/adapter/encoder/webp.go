package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/dontpanicw/PhotoGallery/internal/port"
	"github.com/dontpanicw/PhotoGallery/pkg/webpmux"
	"github.com/h2non/bimg"
)

// Quality of the lossy WebP output.
const Quality = 85

var _ port.Encoder = (*WebPEncoder)(nil)

// WebPEncoder encodes through libvips.
type WebPEncoder struct {
	quality int
	png     png.Encoder
}

func NewWebPEncoder() *WebPEncoder {
	return &WebPEncoder{
		quality: Quality,
		png:     png.Encoder{CompressionLevel: png.BestSpeed},
	}
}

func (e *WebPEncoder) Encode(img image.Image, exif []byte) ([]byte, error) {
	// libvips принимает только закодированный буфер, отдаём ему PNG без потерь
	var buf bytes.Buffer
	if err := e.png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to prepare pixel buffer: %w", err)
	}

	out, err := bimg.NewImage(buf.Bytes()).Process(bimg.Options{
		Type:          bimg.WEBP,
		Quality:       e.quality,
		StripMetadata: true,
		NoAutoRotate:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}

	if exif == nil {
		return out, nil
	}
	out, err = webpmux.AttachEXIF(out, exif)
	if err != nil {
		return nil, fmt.Errorf("failed to attach exif: %w", err)
	}
	return out, nil
}
