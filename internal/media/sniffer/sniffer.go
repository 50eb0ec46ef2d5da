package sniffer

import (
	"bytes"
	"encoding/binary"
	"errors"

	"imgvault/internal/models"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
	FormatAVIF Format = "avif"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrCorruptImage      = errors.New("corrupt image data")
)

var mimeByFormat = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatWEBP: "image/webp",
	FormatAVIF: "image/avif",
}

// MIME returns the canonical content type for a format name. Unknown names
// fall back to the generic binary type.
func MIME(format string) string {
	if m, ok := mimeByFormat[Format(format)]; ok {
		return m
	}
	return "application/octet-stream"
}

func (f Format) MIME() string {
	return mimeByFormat[f]
}

func (f Format) Ext() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

type Info struct {
	Format      Format
	MIME        string
	Width       int
	Height      int
	Orientation models.Orientation
}

// Inspect determines the container format and pixel dimensions from the raw
// bytes. It never touches pixel data; everything is read from headers.
func Inspect(data []byte) (Info, error) {
	format, err := detect(data)
	if err != nil {
		return Info{}, err
	}

	var width, height int
	switch format {
	case FormatJPEG:
		width, height, err = jpegDimensions(data)
	case FormatPNG:
		width, height, err = pngDimensions(data)
	case FormatGIF:
		width, height, err = gifDimensions(data)
	case FormatWEBP:
		width, height, err = webpDimensions(data)
	case FormatAVIF:
		width, height, err = avifDimensions(data)
	}
	if err != nil {
		return Info{}, err
	}

	orientation := models.OrientationLandscape
	if height > width {
		orientation = models.OrientationPortrait
	}

	return Info{
		Format:      format,
		MIME:        format.MIME(),
		Width:       width,
		Height:      height,
		Orientation: orientation,
	}, nil
}

func detect(head []byte) (Format, error) {
	if len(head) == 0 {
		return "", ErrUnsupportedFormat
	}

	switch {
	case isJPEG(head):
		return FormatJPEG, nil
	case isPNG(head):
		return FormatPNG, nil
	case isGIF(head):
		return FormatGIF, nil
	case isWEBP(head):
		return FormatWEBP, nil
	case isAVIF(head):
		return FormatAVIF, nil
	}
	return "", ErrUnsupportedFormat
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

func isAVIF(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	boxType := string(head[4:8])
	return boxType == "ftyp" && bytes.Contains(head[8:], []byte("avif"))
}

// jpegDimensions scans marker segments until it hits a start-of-frame.
func jpegDimensions(data []byte) (int, int, error) {
	i := 2
	for i+9 < len(data) {
		if data[i] != 0xff {
			return 0, 0, ErrCorruptImage
		}
		marker := data[i+1]
		// fill bytes before a marker
		if marker == 0xff {
			i++
			continue
		}
		// standalone markers carry no length
		if marker == 0xd8 || (marker >= 0xd0 && marker <= 0xd7) || marker == 0x01 {
			i += 2
			continue
		}
		length := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if length < 2 {
			return 0, 0, ErrCorruptImage
		}
		if isSOFMarker(marker) {
			if i+9 > len(data) {
				return 0, 0, ErrCorruptImage
			}
			height := int(binary.BigEndian.Uint16(data[i+5 : i+7]))
			width := int(binary.BigEndian.Uint16(data[i+7 : i+9]))
			if width == 0 || height == 0 {
				return 0, 0, ErrCorruptImage
			}
			return width, height, nil
		}
		i += 2 + length
	}
	return 0, 0, ErrCorruptImage
}

func isSOFMarker(marker byte) bool {
	if marker < 0xc0 || marker > 0xcf {
		return false
	}
	// DHT, JPG and DAC sit inside the SOF range but are not frames
	return marker != 0xc4 && marker != 0xc8 && marker != 0xcc
}

func pngDimensions(data []byte) (int, int, error) {
	// 8-byte signature, 4-byte length, "IHDR", then width and height
	if len(data) < 24 || !bytes.Equal(data[12:16], []byte("IHDR")) {
		return 0, 0, ErrCorruptImage
	}
	width := int(binary.BigEndian.Uint32(data[16:20]))
	height := int(binary.BigEndian.Uint32(data[20:24]))
	if width == 0 || height == 0 {
		return 0, 0, ErrCorruptImage
	}
	return width, height, nil
}

func gifDimensions(data []byte) (int, int, error) {
	if len(data) < 10 {
		return 0, 0, ErrCorruptImage
	}
	width := int(binary.LittleEndian.Uint16(data[6:8]))
	height := int(binary.LittleEndian.Uint16(data[8:10]))
	if width == 0 || height == 0 {
		return 0, 0, ErrCorruptImage
	}
	return width, height, nil
}

func webpDimensions(data []byte) (int, int, error) {
	if len(data) < 30 {
		return 0, 0, ErrCorruptImage
	}
	chunk := string(data[12:16])
	switch chunk {
	case "VP8 ":
		// lossy bitstream: 3-byte frame tag, 3-byte start code, then
		// 14-bit width and height
		if data[23] != 0x9d || data[24] != 0x01 || data[25] != 0x2a {
			return 0, 0, ErrCorruptImage
		}
		width := int(binary.LittleEndian.Uint16(data[26:28])) & 0x3fff
		height := int(binary.LittleEndian.Uint16(data[28:30])) & 0x3fff
		return width, height, nil
	case "VP8L":
		// lossless bitstream: signature byte, then two 14-bit fields
		if data[20] != 0x2f {
			return 0, 0, ErrCorruptImage
		}
		b0, b1, b2, b3 := int(data[21]), int(data[22]), int(data[23]), int(data[24])
		width := 1 + ((b1&0x3f)<<8 | b0)
		height := 1 + ((b3&0x0f)<<10 | b2<<2 | b1>>6)
		return width, height, nil
	case "VP8X":
		// extended container: 24-bit canvas size minus one
		width := 1 + int(uint32(data[24])|uint32(data[25])<<8|uint32(data[26])<<16)
		height := 1 + int(uint32(data[27])|uint32(data[28])<<8|uint32(data[29])<<16)
		return width, height, nil
	}
	return 0, 0, ErrCorruptImage
}

func avifDimensions(data []byte) (int, int, error) {
	// the ispe property box carries the spatial extent:
	// size(4) "ispe" version/flags(4) width(4) height(4)
	idx := bytes.Index(data, []byte("ispe"))
	if idx < 0 || idx+16 > len(data) {
		return 0, 0, ErrCorruptImage
	}
	width := int(binary.BigEndian.Uint32(data[idx+8 : idx+12]))
	height := int(binary.BigEndian.Uint32(data[idx+12 : idx+16]))
	if width == 0 || height == 0 {
		return 0, 0, ErrCorruptImage
	}
	return width, height, nil
}
