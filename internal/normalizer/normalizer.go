// Package normalizer converts uploaded photos into the canonical stored form:
// WebP at a fixed quality with the orientation ambiguity resolved.
package normalizer

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/dontpanicw/PhotoGallery/internal/orientation"
	"github.com/dontpanicw/PhotoGallery/internal/port"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

var _ port.Normalizer = (*Normalizer)(nil)

// Decoded is a raw pixel buffer together with the metadata it was stored with.
// Width and Height describe the buffer before any orientation is applied.
type Decoded struct {
	Image       image.Image
	Width       int
	Height      int
	Orientation orientation.Code
	Exif        []byte
}

type Normalizer struct {
	encoder port.Encoder
	log     *zap.Logger
}

func NewNormalizer(encoder port.Encoder, log *zap.Logger) *Normalizer {
	return &Normalizer{
		encoder: encoder,
		log:     log,
	}
}

// StorageKey maps an upload filename to the name it is stored under.
func StorageKey(filename string) string {
	base := filepath.Base(filepath.ToSlash(filename))
	// расширение всегда в нижнем регистре, в том числе для D.WEBP
	return strings.TrimSuffix(base, filepath.Ext(base)) + domain.CanonicalExt
}

func isCanonical(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), domain.CanonicalExt)
}

// Normalize runs the pipeline for one upload. Files that already carry the
// canonical extension are stored byte for byte.
func (n *Normalizer) Normalize(data []byte, filename string) (*domain.NormalizedImage, error) {
	key := StorageKey(filename)

	if isCanonical(filename) {
		return n.passthrough(data, filename, key)
	}

	decoded, err := n.Decode(data, filename)
	if err != nil {
		return nil, err
	}
	return n.transcode(decoded, filename, key)
}

// Renormalize re-examines a stored blob. The blob is re-encoded only when its
// orientation still needs the corrective rotation.
func (n *Normalizer) Renormalize(data []byte, key string) (*domain.NormalizedImage, error) {
	decoded, err := n.Decode(data, key)
	if err != nil {
		return nil, err
	}

	decision := orientation.Resolve(decoded.Width, decoded.Height, decoded.Orientation)
	if !decision.Rotate {
		return &domain.NormalizedImage{
			Data:         data,
			Key:          key,
			IsHorizontal: decision.IsHorizontal,
		}, nil
	}
	return n.transcode(decoded, key, key)
}

// Decode reads the pixel buffer without applying the orientation tag.
func (n *Normalizer) Decode(data []byte, filename string) (*Decoded, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewNormalizationError(filename, domain.ErrDecode, err)
	}
	bounds := img.Bounds()

	decoded := &Decoded{
		Image:  img,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}
	decoded.Exif, decoded.Orientation = n.metadata(data, filename)
	return decoded, nil
}

// metadata treats an unreadable EXIF block as absent.
func (n *Normalizer) metadata(data []byte, filename string) ([]byte, orientation.Code) {
	rawExif, err := extractExif(data)
	if err != nil {
		n.log.Warn("ignoring unreadable exif", zap.String("filename", filename), zap.Error(err))
		return nil, orientation.Unknown
	}
	if rawExif == nil {
		return nil, orientation.Unknown
	}

	code, err := readOrientation(rawExif)
	if err != nil {
		n.log.Warn("ignoring unreadable orientation", zap.String("filename", filename), zap.Error(err))
		return nil, orientation.Unknown
	}
	return rawExif, code
}

func (n *Normalizer) passthrough(data []byte, filename, key string) (*domain.NormalizedImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewNormalizationError(filename, domain.ErrDecode, err)
	}
	_, code := n.metadata(data, filename)

	// байты не меняются, поэтому классифицируем то, что увидит просмотрщик
	w, h := orientation.DisplaySize(cfg.Width, cfg.Height, code)
	return &domain.NormalizedImage{
		Data:         data,
		Key:          key,
		IsHorizontal: orientation.IsHorizontal(w, h),
	}, nil
}

func (n *Normalizer) transcode(decoded *Decoded, filename, key string) (*domain.NormalizedImage, error) {
	decision := orientation.Resolve(decoded.Width, decoded.Height, decoded.Orientation)

	img := decoded.Image
	var exifOut []byte
	if decision.Rotate {
		var err error
		exifOut, err = rebuildExif(decoded.Exif, true)
		if err != nil {
			return nil, domain.NewNormalizationError(filename, domain.ErrMetadata, err)
		}
		img = imaging.Rotate90(img)
		n.log.Debug("rotated photo", zap.String("filename", filename), zap.Stringer("source", decoded))
	} else if decoded.Exif != nil {
		var err error
		exifOut, err = rebuildExif(decoded.Exif, false)
		if err != nil {
			n.log.Warn("dropping exif that cannot be re-encoded", zap.String("filename", filename), zap.Error(err))
			exifOut = nil
		}
	}

	encoded, err := n.encoder.Encode(img, exifOut)
	if err != nil {
		return nil, domain.NewNormalizationError(filename, domain.ErrEncode, err)
	}

	return &domain.NormalizedImage{
		Data:         encoded,
		Key:          key,
		IsHorizontal: decision.IsHorizontal,
		Rewritten:    true,
	}, nil
}

func (d *Decoded) String() string {
	return fmt.Sprintf("%dx%d orientation=%d", d.Width, d.Height, d.Orientation)
}
