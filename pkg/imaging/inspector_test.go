package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) *bytes.Reader {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return bytes.NewReader(buf.Bytes())
}

func TestInspectHighQuality(t *testing.T) {
	info, err := NewInspector(0, 0).Inspect(encodePNG(t, 1920, 1080))
	require.NoError(t, err)

	assert.Equal(t, "image/png", info.MimeType)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.True(t, info.HighQuality)
	assert.Nil(t, info.Address)
}

func TestInspectLowQuality(t *testing.T) {
	info, err := NewInspector(1920, 1080).Inspect(encodePNG(t, 1919, 1200))
	require.NoError(t, err)
	assert.False(t, info.HighQuality)
}

func TestInspectRejectsNonImage(t *testing.T) {
	_, err := NewInspector(0, 0).Inspect(bytes.NewReader([]byte("not an image at all")))
	require.ErrorIs(t, err, ErrNotImage)
}

func TestFormatCoordinates(t *testing.T) {
	assert.Equal(t, "55.751244, 37.618423", FormatCoordinates(55.751244, 37.618423))
}
