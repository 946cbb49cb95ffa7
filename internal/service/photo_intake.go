package service

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/imaging"
	"github.com/noah-isme/fieldops-api/pkg/storage"
)

type photoFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type photoInspector interface {
	Inspect(r io.ReadSeeker) (*imaging.Info, error)
}

type photoURLSigner interface {
	Issue(ownerID, relPath string) (string, time.Time, error)
	Verify(token string) (storage.Ticket, error)
}

// PhotoUpload carries one uploaded photo. Content must stay readable until the call returns.
type PhotoUpload struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

// StoredPhoto is an inspected photo persisted to storage.
type StoredPhoto struct {
	Path string
	Size int64
	Info imaging.Info
}

// PhotoDownload bundles an opened photo for streaming.
type PhotoDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
	ExpiresAt time.Time
}

// PhotoIntakeConfig holds validation parameters.
type PhotoIntakeConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// PhotoIntake validates, stores and serves uploaded photos for answers and reports.
type PhotoIntake struct {
	storage   photoFileStorage
	inspector photoInspector
	signer    photoURLSigner
	logger    *zap.Logger
	cfg       PhotoIntakeConfig
	mimeSet   map[string]struct{}
}

// NewPhotoIntake constructs the intake with defaults.
func NewPhotoIntake(store photoFileStorage, inspector photoInspector, signer photoURLSigner, logger *zap.Logger, cfg PhotoIntakeConfig) *PhotoIntake {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inspector == nil {
		inspector = imaging.NewInspector(0, 0)
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 15 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"image/jpeg", "image/png"}
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mime := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}
	return &PhotoIntake{storage: store, inspector: inspector, signer: signer, logger: logger, cfg: cfg, mimeSet: mimeSet}
}

// Inspect validates every upload before anything is stored. Quality and location are computed here and
// never taken from the client.
func (p *PhotoIntake) Inspect(uploads []PhotoUpload) ([]imaging.Info, error) {
	infos := make([]imaging.Info, 0, len(uploads))
	for _, upload := range uploads {
		if upload.Content == nil || upload.Size <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("photo %q is empty", upload.Filename))
		}
		if upload.Size > p.cfg.MaxFileSize {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("photo %q exceeds %d bytes", upload.Filename, p.cfg.MaxFileSize))
		}
		info, err := p.inspector.Inspect(upload.Content)
		if err != nil {
			if errors.Is(err, imaging.ErrNotImage) {
				return nil, appErrors.Clone(appErrors.ErrUnsupportedMediaType, fmt.Sprintf("photo %q is not a supported image", upload.Filename))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect photo")
		}
		if _, ok := p.mimeSet[strings.ToLower(info.MimeType)]; !ok {
			return nil, appErrors.Clone(appErrors.ErrUnsupportedMediaType, fmt.Sprintf("photo %q has type %s", upload.Filename, info.MimeType))
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// Store writes inspected uploads under dir. When any write fails the already written files are removed.
func (p *PhotoIntake) Store(dir string, uploads []PhotoUpload, infos []imaging.Info) ([]StoredPhoto, error) {
	stored := make([]StoredPhoto, 0, len(uploads))
	for i, upload := range uploads {
		name := upload.Filename
		if filepath.Ext(name) == "" {
			name += photoExtension(infos[i].MimeType)
		}
		filename, err := storage.UniqueName(dir, name)
		if err != nil {
			p.Discard(storedPaths(stored))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to name photo")
		}
		if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
			p.Discard(storedPaths(stored))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
		}
		path, err := p.storage.SaveStream(filename, upload.Content)
		if err != nil {
			p.Discard(storedPaths(stored))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist photo")
		}
		stored = append(stored, StoredPhoto{Path: path, Size: upload.Size, Info: infos[i]})
	}
	return stored, nil
}

// Discard removes stored files, logging failures.
func (p *PhotoIntake) Discard(paths []string) {
	for _, path := range paths {
		if err := p.storage.Delete(path); err != nil {
			p.logger.Warn("failed to remove stored photo", zap.String("path", path), zap.Error(err))
		}
	}
}

// DownloadURL returns a signed relative URL for the photo with the given id.
func (p *PhotoIntake) DownloadURL(id, relPath string) string {
	if p.signer == nil || relPath == "" {
		return ""
	}
	token, _, err := p.signer.Issue(id, relPath)
	if err != nil {
		p.logger.Warn("failed to sign photo url", zap.String("id", id), zap.Error(err))
		return ""
	}
	base := strings.TrimRight(p.cfg.APIPrefix, "/")
	return fmt.Sprintf("%s/photos/%s/file?token=%s", base, id, token)
}

// Open validates a signed token for the photo id and opens the stored file.
func (p *PhotoIntake) Open(id, token string) (*PhotoDownload, error) {
	if p.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	ticket, err := p.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	relPath, expiresAt := ticket.Path, ticket.ExpiresAt
	if ticket.OwnerID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := p.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "photo not found")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read photo metadata")
	}
	contentType := mime.TypeByExtension(filepath.Ext(relPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &PhotoDownload{File: file, Filename: filepath.Base(relPath), MimeType: contentType, SizeBytes: info.Size(), ExpiresAt: expiresAt}, nil
}

func storedPaths(stored []StoredPhoto) []string {
	paths := make([]string, len(stored))
	for i, photo := range stored {
		paths[i] = photo.Path
	}
	return paths
}

func photoExtension(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	default:
		return ""
	}
}
