package fixtures

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // registers the GIF decoder for DecodeConfig
	_ "image/jpeg" // registers the JPEG decoder for DecodeConfig
	_ "image/png"  // registers the PNG decoder for DecodeConfig
	"strings"

	o "github.com/imagealter/worker-test-harness/framework/opt"

	exif "github.com/dsoprea/go-exif/v3"
)

// ImageInfo is a summary of an image file, shown when output does not match a fixture.
type ImageInfo struct {
	Format   string
	Size     int
	Width    o.Maybe[int]
	Height   o.Maybe[int]
	EXIFTags int
}

var imageSignatures = []struct { //nolint:gochecknoglobals
	format string
	prefix []byte
}{
	{"png", []byte("\x89PNG\r\n\x1a\n")},
	{"jpeg", []byte{0xff, 0xd8, 0xff}},
	{"gif", []byte("GIF87a")},
	{"gif", []byte("GIF89a")},
	{"tiff", []byte("II*\x00")},
	{"tiff", []byte("MM\x00*")},
}

// DescribeImage identifies the format of data by its signature, and reads its dimensions and EXIF
// tags where possible. It never fails; whatever cannot be determined is left empty.
func DescribeImage(data []byte) ImageInfo {
	info := ImageInfo{Format: "unknown", Size: len(data)}
	for _, sig := range imageSignatures {
		if bytes.HasPrefix(data, sig.prefix) {
			info.Format = sig.format
			break
		}
	}
	if config, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width, info.Height = o.Some(config.Width), o.Some(config.Height)
	}
	if info.Format == "jpeg" || info.Format == "tiff" {
		tags, _, err := exif.GetFlatExifDataUniversalSearchWithReadSeeker(bytes.NewReader(data), nil, true)
		if err == nil {
			info.EXIFTags = len(tags)
		}
	}
	return info
}

// String returns a short description such as "png, 1234 bytes, 100x80".
func (i ImageInfo) String() string {
	parts := []string{i.Format, fmt.Sprintf("%d bytes", i.Size)}
	if i.Width.IsDefined() {
		parts = append(parts, fmt.Sprintf("%dx%d", i.Width.Value(), i.Height.Value()))
	}
	if i.EXIFTags > 0 {
		parts = append(parts, fmt.Sprintf("%d EXIF tags", i.EXIFTags))
	}
	return strings.Join(parts, ", ")
}
