// Package orientation decides whether a decoded photo needs a corrective
// rotation and how the stored result should be classified.
package orientation

// Code is the value of the EXIF Orientation tag (0x0112).
type Code uint16

const (
	Unknown     Code = 0
	TopLeft     Code = 1
	TopRight    Code = 2
	BottomRight Code = 3
	BottomLeft  Code = 4
	LeftTop     Code = 5
	RightTop    Code = 6
	RightBottom Code = 7
	LeftBottom  Code = 8
)

// Valid reports whether c is one of the eight codes defined by EXIF.
func (c Code) Valid() bool {
	return c >= TopLeft && c <= LeftBottom
}

// Transposed reports whether a viewer swaps width and height when applying c.
func (c Code) Transposed() bool {
	return c >= LeftTop && c <= LeftBottom
}

type Decision struct {
	// Rotate is true when the pixel buffer has to be turned 90° counter-clockwise
	// and the orientation tag reset to TopLeft.
	Rotate bool
	// IsHorizontal classifies the image as it will be stored.
	IsHorizontal bool
}

// DisplaySize returns the geometry a viewer shows for a raw buffer of
// width x height tagged with code.
func DisplaySize(width, height int, code Code) (int, int) {
	if code.Transposed() {
		return height, width
	}
	return width, height
}

// IsHorizontal is the plain aspect comparison. Squares are not horizontal.
func IsHorizontal(width, height int) bool {
	return width > height
}

// Resolve takes the raw buffer size as decoded (before any tag is applied)
// and the orientation code, and returns what the normalizer should do.
//
// Only LeftBottom on an image whose display geometry is not horizontal
// triggers a rotation. The classification then follows the rotated buffer.
func Resolve(width, height int, code Code) Decision {
	dw, dh := DisplaySize(width, height, code)
	displayHorizontal := IsHorizontal(dw, dh)

	if code == LeftBottom && !displayHorizontal {
		// после поворота на 90° стороны буфера меняются местами
		return Decision{Rotate: true, IsHorizontal: IsHorizontal(height, width)}
	}
	return Decision{IsHorizontal: displayHorizontal}
}
