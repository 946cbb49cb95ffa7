package service

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/imaging"
	"github.com/noah-isme/fieldops-api/pkg/storage"
)

func pngUpload(t *testing.T, name string, w, h int) PhotoUpload {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, image.NewGray(image.Rect(0, 0, w, h))))
	return PhotoUpload{Filename: name, Size: int64(buf.Len()), Content: bytes.NewReader(buf.Bytes())}
}

func newTestPhotoIntake(t *testing.T) (*PhotoIntake, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("photo-secret", storage.AudiencePhotoDownload, time.Minute)
	intake := NewPhotoIntake(store, imaging.NewInspector(8, 8), signer, zap.NewNop(), PhotoIntakeConfig{APIPrefix: "/api/v1/"})
	return intake, dir
}

func TestPhotoIntakeInspectAndStore(t *testing.T) {
	intake, dir := newTestPhotoIntake(t)
	uploads := []PhotoUpload{pngUpload(t, "shelf", 16, 16), pngUpload(t, "front.png", 4, 4)}

	infos, err := intake.Inspect(uploads)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.True(t, infos[0].HighQuality)
	assert.False(t, infos[1].HighQuality)

	stored, err := intake.Store("reports/r1", uploads, infos)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.True(t, strings.HasPrefix(stored[0].Path, "reports/r1/"))
	assert.Equal(t, ".png", filepath.Ext(stored[0].Path))
	_, err = os.Stat(filepath.Join(dir, stored[1].Path))
	require.NoError(t, err)

	intake.Discard(storedPaths(stored))
	_, err = os.Stat(filepath.Join(dir, stored[1].Path))
	assert.True(t, os.IsNotExist(err))
}

func TestPhotoIntakeInspectRejects(t *testing.T) {
	intake, _ := newTestPhotoIntake(t)

	text := PhotoUpload{Filename: "notes.txt", Size: 5, Content: bytes.NewReader([]byte("hello"))}
	_, err := intake.Inspect([]PhotoUpload{pngUpload(t, "ok.png", 2, 2), text})
	assert.Equal(t, appErrors.ErrUnsupportedMediaType.Code, errCode(err))

	huge := pngUpload(t, "big.png", 2, 2)
	huge.Size = 16 * 1024 * 1024
	_, err = intake.Inspect([]PhotoUpload{huge})
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, errCode(err))

	_, err = intake.Inspect([]PhotoUpload{{Filename: "empty.png"}})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
}

func TestPhotoIntakeSignedDownload(t *testing.T) {
	intake, _ := newTestPhotoIntake(t)
	uploads := []PhotoUpload{pngUpload(t, "a.png", 2, 2)}
	infos, err := intake.Inspect(uploads)
	require.NoError(t, err)
	stored, err := intake.Store("answers/a1", uploads, infos)
	require.NoError(t, err)

	url := intake.DownloadURL("item-1", stored[0].Path)
	require.True(t, strings.HasPrefix(url, "/api/v1/photos/item-1/file?token="))
	token := strings.TrimPrefix(url, "/api/v1/photos/item-1/file?token=")

	download, err := intake.Open("item-1", token)
	require.NoError(t, err)
	defer download.File.Close() //nolint:errcheck
	assert.Equal(t, uploads[0].Size, download.SizeBytes)

	_, err = intake.Open("item-2", token)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))
	_, err = intake.Open("item-1", "garbage")
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))
}
