package sniffer

import (
	"encoding/binary"
	"errors"
	"testing"

	"imgvault/internal/models"
)

func pngFixture(width, height uint32) []byte {
	data := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	data = append(data, 0, 0, 0, 13)
	data = append(data, []byte("IHDR")...)
	data = binary.BigEndian.AppendUint32(data, width)
	data = binary.BigEndian.AppendUint32(data, height)
	return append(data, 8, 6, 0, 0, 0)
}

func gifFixture(width, height uint16) []byte {
	data := []byte("GIF89a")
	data = binary.LittleEndian.AppendUint16(data, width)
	data = binary.LittleEndian.AppendUint16(data, height)
	return append(data, 0, 0, 0)
}

func jpegFixture(width, height uint16) []byte {
	data := []byte{0xff, 0xd8}
	// APP0 segment
	data = append(data, 0xff, 0xe0, 0x00, 0x10)
	data = append(data, []byte("JFIF\x00")...)
	data = append(data, make([]byte, 9)...)
	// SOF0 segment
	data = append(data, 0xff, 0xc0, 0x00, 0x11, 0x08)
	data = binary.BigEndian.AppendUint16(data, height)
	data = binary.BigEndian.AppendUint16(data, width)
	data = append(data, 0x03, 0x01, 0x22, 0x00, 0x02, 0x11, 0x01, 0x03, 0x11, 0x01)
	return append(data, 0xff, 0xd9)
}

func webpLosslessFixture(width, height int) []byte {
	data := []byte("RIFF")
	data = append(data, 0x1a, 0, 0, 0)
	data = append(data, []byte("WEBPVP8L")...)
	data = append(data, 0x0e, 0, 0, 0)
	w := width - 1
	h := height - 1
	data = append(data, 0x2f,
		byte(w&0xff),
		byte((w>>8)&0x3f|(h&0x03)<<6),
		byte((h>>2)&0xff),
		byte((h>>10)&0x0f),
	)
	return append(data, make([]byte, 8)...)
}

func webpExtendedFixture(width, height int) []byte {
	data := []byte("RIFF")
	data = append(data, 0x20, 0, 0, 0)
	data = append(data, []byte("WEBPVP8X")...)
	data = append(data, 0x0a, 0, 0, 0)
	data = append(data, 0x02, 0, 0, 0) // flags + reserved
	w := width - 1
	h := height - 1
	data = append(data, byte(w), byte(w>>8), byte(w>>16))
	data = append(data, byte(h), byte(h>>8), byte(h>>16))
	return append(data, make([]byte, 4)...)
}

func avifFixture(width, height uint32) []byte {
	data := []byte{0, 0, 0, 0x14}
	data = append(data, []byte("ftypavif")...)
	data = append(data, []byte("avifmif1")...)
	// ispe property: size, type, version+flags, width, height
	data = append(data, 0, 0, 0, 0x14)
	data = append(data, []byte("ispe")...)
	data = append(data, 0, 0, 0, 0)
	data = binary.BigEndian.AppendUint32(data, width)
	data = binary.BigEndian.AppendUint32(data, height)
	return data
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		format      Format
		width       int
		height      int
		orientation models.Orientation
	}{
		{"png landscape", pngFixture(800, 600), FormatPNG, 800, 600, models.OrientationLandscape},
		{"png portrait", pngFixture(600, 800), FormatPNG, 600, 800, models.OrientationPortrait},
		{"png square is landscape", pngFixture(512, 512), FormatPNG, 512, 512, models.OrientationLandscape},
		{"gif", gifFixture(2000, 1000), FormatGIF, 2000, 1000, models.OrientationLandscape},
		{"jpeg portrait", jpegFixture(500, 800), FormatJPEG, 500, 800, models.OrientationPortrait},
		{"webp lossless", webpLosslessFixture(1024, 768), FormatWEBP, 1024, 768, models.OrientationLandscape},
		{"webp extended", webpExtendedFixture(640, 1136), FormatWEBP, 640, 1136, models.OrientationPortrait},
		{"avif", avifFixture(1920, 1080), FormatAVIF, 1920, 1080, models.OrientationLandscape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Inspect(tt.data)
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if info.Format != tt.format {
				t.Errorf("Format = %s, want %s", info.Format, tt.format)
			}
			if info.Width != tt.width || info.Height != tt.height {
				t.Errorf("dimensions = %dx%d, want %dx%d", info.Width, info.Height, tt.width, tt.height)
			}
			if info.Orientation != tt.orientation {
				t.Errorf("Orientation = %s, want %s", info.Orientation, tt.orientation)
			}
			if info.MIME != tt.format.MIME() {
				t.Errorf("MIME = %s, want %s", info.MIME, tt.format.MIME())
			}
		})
	}
}

func TestInspectOrientationConsistency(t *testing.T) {
	dims := []struct{ w, h uint32 }{
		{1, 2}, {2, 1}, {100, 100}, {799, 800}, {800, 799},
	}
	for _, d := range dims {
		info, err := Inspect(pngFixture(d.w, d.h))
		if err != nil {
			t.Fatalf("Inspect(%dx%d) error = %v", d.w, d.h, err)
		}
		wantPortrait := d.h > d.w
		gotPortrait := info.Orientation == models.OrientationPortrait
		if gotPortrait != wantPortrait {
			t.Errorf("%dx%d: portrait = %v, want %v", d.w, d.h, gotPortrait, wantPortrait)
		}
	}
}

func TestInspectRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("definitely not an image, just some text padding")},
		{"bmp", append([]byte("BM"), make([]byte, 30)...)},
		{"svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Inspect(tt.data); !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("Inspect() error = %v, want ErrUnsupportedFormat", err)
			}
		})
	}
}

func TestInspectRejectsCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated png", pngFixture(800, 600)[:14]},
		{"zero dimensions png", pngFixture(0, 0)},
		{"truncated gif", []byte("GIF89a\x00")},
		{"jpeg without frame", []byte{0xff, 0xd8, 0xff, 0xd9, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"webp unknown chunk", append([]byte("RIFF\x1a\x00\x00\x00WEBPXXXX"), make([]byte, 16)...)},
		{"avif without ispe", append([]byte{0, 0, 0, 0x14}, []byte("ftypavifmif1....")...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Inspect(tt.data); !errors.Is(err, ErrCorruptImage) {
				t.Errorf("Inspect() error = %v, want ErrCorruptImage", err)
			}
		})
	}
}

func TestFormatExt(t *testing.T) {
	if got := FormatJPEG.Ext(); got != "jpg" {
		t.Errorf("jpeg ext = %s, want jpg", got)
	}
	if got := FormatWEBP.Ext(); got != "webp" {
		t.Errorf("webp ext = %s, want webp", got)
	}
}
