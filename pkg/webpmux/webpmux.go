// Package webpmux reads and writes the EXIF chunk of a WebP RIFF container.
package webpmux

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	vp8xPayloadSize = 10

	flagEXIF  = 0x08
	flagAlpha = 0x10
)

var (
	ErrNotWebP     = errors.New("webpmux: not a WebP file")
	ErrNoBitstream = errors.New("webpmux: no VP8 or VP8L chunk")
)

var exifPrefix = []byte("Exif\x00\x00")

type chunk struct {
	fourCC  string
	payload []byte
}

func parse(data []byte) ([]chunk, error) {
	if len(data) < riffHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, ErrNotWebP
	}
	riffSize := int(binary.LittleEndian.Uint32(data[4:8]))
	end := riffSize + 8
	if end > len(data) {
		end = len(data)
	}

	var chunks []chunk
	for off := riffHeaderSize; off+chunkHeaderSize <= end; {
		fourCC := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		start := off + chunkHeaderSize
		if size < 0 || start+size > end {
			return nil, fmt.Errorf("webpmux: chunk %q overruns file", fourCC)
		}
		chunks = append(chunks, chunk{fourCC: fourCC, payload: data[start : start+size]})
		off = start + size + size&1
	}
	return chunks, nil
}

func serialize(chunks []chunk) []byte {
	var body bytes.Buffer
	body.WriteString("WEBP")
	for _, c := range chunks {
		var hdr [chunkHeaderSize]byte
		copy(hdr[0:4], c.fourCC)
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(c.payload)))
		body.Write(hdr[:])
		body.Write(c.payload)
		if len(c.payload)&1 == 1 {
			body.WriteByte(0)
		}
	}

	out := make([]byte, 8, 8+body.Len())
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(body.Len()))
	return append(out, body.Bytes()...)
}

// canvas reads the frame size and alpha bit from a VP8 or VP8L bitstream.
func canvas(c chunk) (width, height int, alpha bool, err error) {
	p := c.payload
	switch c.fourCC {
	case "VP8 ":
		if len(p) < 10 || p[3] != 0x9d || p[4] != 0x01 || p[5] != 0x2a {
			return 0, 0, false, fmt.Errorf("webpmux: bad VP8 frame header")
		}
		width = int(binary.LittleEndian.Uint16(p[6:8]) & 0x3fff)
		height = int(binary.LittleEndian.Uint16(p[8:10]) & 0x3fff)
		return width, height, false, nil
	case "VP8L":
		if len(p) < 5 || p[0] != 0x2f {
			return 0, 0, false, fmt.Errorf("webpmux: bad VP8L signature")
		}
		bits := binary.LittleEndian.Uint32(p[1:5])
		width = int(bits&0x3fff) + 1
		height = int((bits>>14)&0x3fff) + 1
		alpha = (bits>>28)&1 == 1
		return width, height, alpha, nil
	}
	return 0, 0, false, ErrNoBitstream
}

func vp8x(flags byte, width, height int) chunk {
	p := make([]byte, vp8xPayloadSize)
	p[0] = flags
	putUint24(p[4:7], uint32(width-1))
	putUint24(p[7:10], uint32(height-1))
	return chunk{fourCC: "VP8X", payload: p}
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// AttachEXIF returns a copy of webp carrying exif as its EXIF chunk.
// A simple-format file is promoted to the extended format. An existing
// EXIF chunk is replaced.
func AttachEXIF(webp, exif []byte) ([]byte, error) {
	chunks, err := parse(webp)
	if err != nil {
		return nil, err
	}
	if len(exif) == 0 {
		return webp, nil
	}
	exifChunk := chunk{fourCC: "EXIF", payload: bytes.TrimPrefix(exif, exifPrefix)}

	if len(chunks) > 0 && chunks[0].fourCC == "VP8X" {
		if len(chunks[0].payload) < vp8xPayloadSize {
			return nil, fmt.Errorf("webpmux: short VP8X chunk")
		}
		header := append([]byte(nil), chunks[0].payload...)
		header[0] |= flagEXIF
		out := []chunk{{fourCC: "VP8X", payload: header}}

		var xmp []chunk
		for _, c := range chunks[1:] {
			switch c.fourCC {
			case "EXIF":
			case "XMP ":
				xmp = append(xmp, c)
			default:
				out = append(out, c)
			}
		}
		out = append(out, exifChunk)
		out = append(out, xmp...)
		return serialize(out), nil
	}

	var bitstream *chunk
	for i := range chunks {
		if chunks[i].fourCC == "VP8 " || chunks[i].fourCC == "VP8L" {
			bitstream = &chunks[i]
			break
		}
	}
	if bitstream == nil {
		return nil, ErrNoBitstream
	}
	width, height, alpha, err := canvas(*bitstream)
	if err != nil {
		return nil, err
	}

	flags := byte(flagEXIF)
	if alpha {
		flags |= flagAlpha
	}
	return serialize([]chunk{vp8x(flags, width, height), *bitstream, exifChunk}), nil
}

// ExtractEXIF returns the payload of the EXIF chunk, or nil when there is none.
func ExtractEXIF(webp []byte) ([]byte, error) {
	chunks, err := parse(webp)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.fourCC == "EXIF" {
			return bytes.TrimPrefix(c.payload, exifPrefix), nil
		}
	}
	return nil, nil
}

// IsWebP reports whether data starts with a WebP RIFF header.
func IsWebP(data []byte) bool {
	return len(data) >= riffHeaderSize && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}
