package normalizer

import (
	"errors"
	"fmt"

	"github.com/dontpanicw/PhotoGallery/internal/orientation"
	"github.com/dontpanicw/PhotoGallery/pkg/webpmux"
	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

const orientationTag = "Orientation"

// extractExif finds the TIFF-structured EXIF block in an encoded file.
// It returns nil when the file carries none.
func extractExif(data []byte) ([]byte, error) {
	if webpmux.IsWebP(data) {
		return webpmux.ExtractEXIF(data)
	}

	raw, err := exif.SearchAndExtractExif(data)
	switch {
	case errors.Is(err, exif.ErrNoExif):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("search exif: %w", err)
	}
	return raw, nil
}

// readOrientation returns Unknown when the block has no usable Orientation tag.
func readOrientation(rawExif []byte) (code orientation.Code, err error) {
	defer recoverExif(&err)

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return orientation.Unknown, fmt.Errorf("parse exif: %w", err)
	}

	for _, tag := range tags {
		if tag.TagName != orientationTag {
			continue
		}
		var value uint16
		switch v := tag.Value.(type) {
		case []uint16:
			if len(v) == 0 {
				return orientation.Unknown, errors.New("empty orientation value")
			}
			value = v[0]
		case uint16:
			value = v
		default:
			return orientation.Unknown, fmt.Errorf("orientation has type %T", tag.Value)
		}

		// некоторые камеры пишут 0, подразумевая "без поворота"
		code = orientation.Code(value)
		if !code.Valid() {
			return orientation.Unknown, nil
		}
		return code, nil
	}
	return orientation.Unknown, nil
}

// rebuildExif re-serializes the IFD chain of rawExif. When reset is true the
// Orientation tag of IFD0 is set to TopLeft.
func rebuildExif(rawExif []byte, reset bool) (out []byte, err error) {
	defer recoverExif(&err)

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("ifd mapping: %w", err)
	}
	ti := exif.NewTagIndex()

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return nil, fmt.Errorf("collect ifds: %w", err)
	}

	ib := exif.NewIfdBuilderFromExistingChain(index.RootIfd)
	if reset {
		if err := ib.SetStandardWithName(orientationTag, []uint16{uint16(orientation.TopLeft)}); err != nil {
			return nil, fmt.Errorf("set orientation: %w", err)
		}
	}

	out, err = exif.NewIfdByteEncoder().EncodeToExif(ib)
	if err != nil {
		return nil, fmt.Errorf("encode exif: %w", err)
	}
	return out, nil
}

// go-exif reports some malformed input by panicking.
func recoverExif(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("exif: %v", r)
	}
}
