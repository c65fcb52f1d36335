// Package image loads the raster images annotations are placed on and
// prepares them for display and export.
package image

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"image-annotator/internal/session"
)

// Source is one decoded image.
type Source struct {
	ID     string      // Registry id
	Path   string      // Original file path, empty when decoded from memory
	Image  image.Image // Decoded pixels
	Format string      // Decoder name: png, jpeg, tiff, bmp, webp
	DPI    float64     // From TIFF metadata, zero when unknown
}

// Width returns the image width in pixels.
func (s *Source) Width() int {
	if s.Image == nil {
		return 0
	}
	return s.Image.Bounds().Dx()
}

// Height returns the image height in pixels.
func (s *Source) Height() int {
	if s.Image == nil {
		return 0
	}
	return s.Image.Bounds().Dy()
}

// WidthInches returns the image width in inches if DPI is known.
func (s *Source) WidthInches() float64 {
	if s.DPI == 0 {
		return 0
	}
	return float64(s.Width()) / s.DPI
}

// HeightInches returns the image height in inches if DPI is known.
func (s *Source) HeightInches() float64 {
	if s.DPI == 0 {
		return 0
	}
	return float64(s.Height()) / s.DPI
}

// Decode decodes an encoded image held in memory.
func Decode(id string, data []byte) (*Source, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", id, err)
	}
	src := &Source{ID: id, Image: img, Format: format}
	if format == "tiff" {
		if dpi, err := tiffDPI(bytes.NewReader(data)); err == nil {
			src.DPI = dpi
		}
	}
	return src, nil
}

// Load reads and decodes an image file. The id is the file's base name.
func Load(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	src, err := Decode(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	src.Path = path
	return src, nil
}

// LoadAll decodes files concurrently, at most limit at a time (no limit
// when limit <= 0). Results keep the order of paths; the first failure
// cancels the rest.
func LoadAll(ctx context.Context, paths []string, limit int) ([]*Source, error) {
	out := make([]*Source, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := Load(path)
			if err != nil {
				return err
			}
			out[i] = src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Register adds each source to the registry as an image of its pixel size.
func Register(reg *session.Registry, srcs ...*Source) error {
	for _, s := range srcs {
		if _, err := reg.AddImage(s.ID, s.Width(), s.Height()); err != nil {
			return fmt.Errorf("register %s: %w", s.ID, err)
		}
	}
	return nil
}

var errNoResolution = errors.New("no resolution tags found")

// tiffDPI reads the resolution tags of the first IFD.
func tiffDPI(r io.ReadSeeker) (float64, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, err
	}

	var byteOrder binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		byteOrder = binary.LittleEndian
	case "MM":
		byteOrder = binary.BigEndian
	default:
		return 0, fmt.Errorf("not a valid TIFF file")
	}

	if _, err := r.Seek(int64(byteOrder.Uint32(header[4:8])), io.SeekStart); err != nil {
		return 0, err
	}
	var numEntries uint16
	if err := binary.Read(r, byteOrder, &numEntries); err != nil {
		return 0, err
	}

	var xRes, yRes float64
	var resUnit uint16 = 2 // inches

	entry := make([]byte, 12)
	for i := uint16(0); i < numEntries; i++ {
		if _, err := io.ReadFull(r, entry); err != nil {
			return 0, err
		}
		tag := byteOrder.Uint16(entry[0:2])
		fieldType := byteOrder.Uint16(entry[2:4])

		switch {
		case tag == 282 && fieldType == 5: // XResolution, RATIONAL
			xRes = tiffRational(r, int64(byteOrder.Uint32(entry[8:12])), byteOrder)
		case tag == 283 && fieldType == 5: // YResolution, RATIONAL
			yRes = tiffRational(r, int64(byteOrder.Uint32(entry[8:12])), byteOrder)
		case tag == 296 && fieldType == 3: // ResolutionUnit, SHORT
			resUnit = byteOrder.Uint16(entry[8:10])
		}
	}

	dpi := xRes
	if dpi == 0 {
		dpi = yRes
	}
	if dpi == 0 {
		return 0, errNoResolution
	}
	if resUnit == 3 { // centimetres
		dpi *= 2.54
	}
	return dpi, nil
}

// tiffRational reads a RATIONAL at offset and restores the read position.
func tiffRational(r io.ReadSeeker, offset int64, byteOrder binary.ByteOrder) float64 {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	defer r.Seek(pos, io.SeekStart)

	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return 0
	}
	var v [2]uint32
	if err := binary.Read(r, byteOrder, &v); err != nil || v[1] == 0 {
		return 0
	}
	return float64(v[0]) / float64(v[1])
}

// SupportedFormats returns the file extensions Load can decode.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg", ".bmp", ".webp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
