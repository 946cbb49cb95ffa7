// Package imaging inspects uploaded photos: content type, dimensions, quality and EXIF GPS position.
package imaging

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"
)

// ErrNotImage is returned when the payload cannot be decoded as a supported image.
var ErrNotImage = errors.New("file is not a supported image")

// Info is the result of inspecting one photo.
type Info struct {
	MimeType    string
	Width       int
	Height      int
	HighQuality bool
	Latitude    *float64
	Longitude   *float64
	Address     *string
}

// Inspector applies the configured quality thresholds.
type Inspector struct {
	minWidth  int
	minHeight int
}

// NewInspector builds an inspector; non-positive thresholds default to 1920x1080.
func NewInspector(minWidth, minHeight int) *Inspector {
	if minWidth <= 0 {
		minWidth = 1920
	}
	if minHeight <= 0 {
		minHeight = 1080
	}
	return &Inspector{minWidth: minWidth, minHeight: minHeight}
}

// IsHighQuality reports whether the dimensions meet both thresholds.
func (i *Inspector) IsHighQuality(width, height int) bool {
	return width >= i.minWidth && height >= i.minHeight
}

// Inspect reads r from the start. A missing or unreadable EXIF block is not an error.
func (i *Inspector) Inspect(r io.ReadSeeker) (*Info, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind photo: %w", err)
	}
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("detect mime: %w", err)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind photo: %w", err)
	}
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	info := &Info{
		MimeType:    mt.String(),
		Width:       cfg.Width,
		Height:      cfg.Height,
		HighQuality: i.IsHighQuality(cfg.Width, cfg.Height),
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind photo: %w", err)
	}
	if lat, lon, ok := gpsPosition(r); ok {
		address := FormatCoordinates(lat, lon)
		info.Latitude = &lat
		info.Longitude = &lon
		info.Address = &address
	}
	return info, nil
}

// FormatCoordinates renders a position as "lat, lon" with six decimals.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}

func gpsPosition(r io.Reader) (float64, float64, bool) {
	x, err := exif.Decode(r)
	if err != nil {
		return 0, 0, false
	}
	lat, lon, err := x.LatLong()
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}
