package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/spreadsheet"
	"github.com/noah-isme/fieldops-api/pkg/storage"
)

const (
	clientResource   = "clients"
	importUploadsDir = "pending"
)

type clientImportStore interface {
	ExistingNames(ctx context.Context, names []string) (map[string]bool, error)
	UpsertByName(ctx context.Context, row repository.ClientUpsert) (bool, error)
}

type employeeLookup interface {
	FindEmployeeByName(ctx context.Context, name string) (*models.User, error)
}

type importFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(dir string, ttl time.Duration) ([]string, error)
}

type importTokenSigner interface {
	Issue(ownerID, relPath string) (string, time.Time, error)
	Verify(token string) (storage.Ticket, error)
	TTL() time.Duration
}

// ClientImportConfig bounds accepted uploads.
type ClientImportConfig struct {
	MaxFileSize int64
}

// ClientImportService runs the two-phase client roster import. Preview parses and stores the upload and
// hands back a signed token; Confirm re-reads the stored file, upserts every row and deletes the file.
type ClientImportService struct {
	clients clientImportStore
	users   employeeLookup
	files   importFileStorage
	signer  importTokenSigner
	audit   auditLogger
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ClientImportConfig
}

// NewClientImportService constructs the service.
func NewClientImportService(clients clientImportStore, users employeeLookup, files importFileStorage, signer importTokenSigner, audit auditLogger, metrics *MetricsService, logger *zap.Logger, cfg ClientImportConfig) *ClientImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	return &ClientImportService{clients: clients, users: users, files: files, signer: signer, audit: audit, metrics: metrics, logger: logger, cfg: cfg}
}

// Preview validates an uploaded roster without persisting any client.
func (s *ClientImportService) Preview(ctx context.Context, filename string, size int64, content io.Reader, principal *models.JWTClaims) (*models.ClientImportPreview, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can import clients")
	}
	format, err := spreadsheet.DetectFormat(filename)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file must be .xlsx or .csv")
	}
	if size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSize))
	}

	relPath := path.Join(importUploadsDir, uuid.NewString()+"."+string(format))
	if _, err := s.files.SaveStream(relPath, io.LimitReader(content, s.cfg.MaxFileSize+1)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store import file")
	}
	keep := false
	defer func() {
		if !keep {
			s.deleteFile(relPath)
		}
	}()

	parsed, err := s.parseStored(relPath, format)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(parsed.rows))
	for _, row := range parsed.rows {
		names = append(names, row.Name)
	}
	existing, err := s.clients.ExistingNames(ctx, names)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing clients")
	}

	preview := &models.ClientImportPreview{Columns: parsed.columns, Rows: parsed.rows, Skipped: parsed.skipped, Warnings: parsed.warnings}
	seen := make(map[string]bool, len(parsed.rows))
	for i := range preview.Rows {
		row := &preview.Rows[i]
		row.Exists = existing[row.Name] || seen[row.Name]
		seen[row.Name] = true
		if row.Exists {
			preview.ToUpdate++
		} else {
			preview.ToCreate++
		}
		if row.EmployeeName == "" {
			continue
		}
		if _, err := s.resolveEmployee(ctx, row.EmployeeName); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up employee")
			}
			preview.Warnings = append(preview.Warnings, employeeMissing(*row))
		}
	}

	token, expiresAt, err := s.signer.Issue(principal.UserID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign import token")
	}
	preview.Token = token
	preview.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	keep = true
	return preview, nil
}

// Confirm commits a previewed import. Rows fail independently; the stored file is removed on every path.
func (s *ClientImportService) Confirm(ctx context.Context, token string, principal *models.JWTClaims) (*models.ClientImportResult, error) {
	if !principal.IsModerator() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only moderators can import clients")
	}
	ticket, err := s.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "import token is invalid or expired")
	}
	relPath := ticket.Path
	if ticket.OwnerID != principal.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "import was previewed by another user")
	}
	defer s.deleteFile(relPath)

	format, err := spreadsheet.DetectFormat(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "import token is invalid or expired")
	}
	parsed, err := s.parseStored(relPath, format)
	if err != nil {
		return nil, err
	}

	result := &models.ClientImportResult{Skipped: parsed.skipped, Warnings: parsed.warnings}
	overwrite := overwrittenColumns(parsed.columns)
	employees := map[string]*string{}
	for _, row := range parsed.rows {
		upsert := repository.ClientUpsert{
			Name:         row.Name,
			Phone:        row.Phone,
			Email:        row.Email,
			Address:      row.Address,
			TradingPoint: row.TradingPoint,
			GroupName:    row.GroupName,
			Columns:      overwrite,
		}
		if row.EmployeeName != "" {
			employeeID, cached := employees[row.EmployeeName]
			if !cached {
				user, err := s.resolveEmployee(ctx, row.EmployeeName)
				switch {
				case err == nil:
					employeeID = &user.ID
				case errors.Is(err, sql.ErrNoRows):
				default:
					result.Errors = append(result.Errors, models.ImportRowIssue{Line: row.Line, Name: row.Name, Message: "employee lookup failed"})
					continue
				}
				employees[row.EmployeeName] = employeeID
			}
			if employeeID == nil {
				result.Warnings = append(result.Warnings, employeeMissing(row))
			}
			upsert.EmployeeID = employeeID
		}

		created, err := s.clients.UpsertByName(ctx, upsert)
		if err != nil {
			s.logger.Warn("client import row failed", zap.Int("line", row.Line), zap.String("name", row.Name), zap.Error(err))
			result.Errors = append(result.Errors, models.ImportRowIssue{Line: row.Line, Name: row.Name, Message: "failed to save client"})
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	s.metrics.RecordImportRows("created", result.Created)
	s.metrics.RecordImportRows("updated", result.Updated)
	s.metrics.RecordImportRows("skipped", result.Skipped)
	s.metrics.RecordImportRows("failed", len(result.Errors))
	emitAudit(ctx, s.audit, s.logger, principal, models.AuditActionClientImport, clientResource, "", map[string]interface{}{
		"created": result.Created, "updated": result.Updated, "skipped": result.Skipped, "errors": len(result.Errors),
	})
	s.logger.Info("client import committed",
		zap.Int("created", result.Created), zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped), zap.Int("errors", len(result.Errors)))
	return result, nil
}

// Discard drops a previewed upload that will not be confirmed.
func (s *ClientImportService) Discard(token string, principal *models.JWTClaims) error {
	ticket, err := s.signer.Verify(token)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "import token is invalid or expired")
	}
	if principal == nil || ticket.OwnerID != principal.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "import was previewed by another user")
	}
	s.deleteFile(ticket.Path)
	return nil
}

// CleanupExpired removes uploads whose preview token can no longer be confirmed.
func (s *ClientImportService) CleanupExpired() (int, error) {
	deleted, err := s.files.CleanupOlderThan(importUploadsDir, s.signer.TTL())
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired client imports removed", zap.Int("files", len(deleted)))
	}
	return len(deleted), nil
}

type parsedImport struct {
	columns  []models.ImportColumn
	rows     []models.ClientImportRow
	skipped  int
	warnings []models.ImportRowIssue
}

func (s *ClientImportService) parseStored(relPath string, format spreadsheet.Format) (*parsedImport, error) {
	file, err := s.files.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "import file no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open import file")
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err == nil && info.Size() > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSize))
	}
	sheet, err := spreadsheet.Read(file, format)
	if err != nil {
		return nil, appErrors.Validation(err, "file could not be parsed")
	}
	return parseClientSheet(sheet)
}

func (s *ClientImportService) resolveEmployee(ctx context.Context, name string) (*models.User, error) {
	if s.users == nil {
		return nil, sql.ErrNoRows
	}
	return s.users.FindEmployeeByName(ctx, name)
}

func (s *ClientImportService) deleteFile(relPath string) {
	if err := s.files.Delete(relPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to delete import file", zap.String("path", relPath), zap.Error(err))
	}
}

// parseClientSheet maps headers to columns and normalises every row. A missing name column aborts.
func parseClientSheet(sheet *spreadsheet.Sheet) (*parsedImport, error) {
	index := detectImportColumns(sheet.Headers)
	if _, ok := index[models.ColumnName]; !ok {
		return nil, appErrors.Clone(appErrors.ErrMissingColumn, `required column "full_name" (or "клиент") not found`)
	}
	parsed := &parsedImport{}
	for _, column := range importColumnOrder {
		if _, ok := index[column]; ok {
			parsed.columns = append(parsed.columns, column)
		}
	}

	cell := func(row []string, column models.ImportColumn) string {
		idx, ok := index[column]
		if !ok {
			return ""
		}
		return sheet.Cell(row, idx)
	}
	for i, raw := range sheet.Rows {
		row := models.ClientImportRow{
			Line:         i + 2,
			Name:         NormalizeCompanyName(cell(raw, models.ColumnName)),
			GroupName:    collapseSpaces(cell(raw, models.ColumnGroup)),
			EmployeeName: collapseSpaces(cell(raw, models.ColumnEmployee)),
			TradingPoint: collapseSpaces(cell(raw, models.ColumnTradingPoint)),
			Address:      collapseSpaces(cell(raw, models.ColumnAddress)),
		}
		if row.Name == "" {
			parsed.skipped++
			continue
		}
		if rawPhone := cell(raw, models.ColumnPhone); rawPhone != "" {
			if phone, ok := NormalizePhone(rawPhone); ok {
				row.Phone = &phone
			} else {
				row.Warnings = append(row.Warnings, fmt.Sprintf("phone %q ignored", rawPhone))
			}
		}
		if rawEmail := cell(raw, models.ColumnEmail); rawEmail != "" {
			if strings.Contains(rawEmail, "@") {
				row.Email = &rawEmail
			} else {
				row.Warnings = append(row.Warnings, fmt.Sprintf("email %q ignored", rawEmail))
			}
		}
		for _, warning := range row.Warnings {
			parsed.warnings = append(parsed.warnings, models.ImportRowIssue{Line: row.Line, Name: row.Name, Message: warning})
		}
		parsed.rows = append(parsed.rows, row)
	}
	return parsed, nil
}

var importColumnOrder = []models.ImportColumn{
	models.ColumnName, models.ColumnPhone, models.ColumnEmail, models.ColumnGroup,
	models.ColumnEmployee, models.ColumnTradingPoint, models.ColumnAddress,
}

// detectImportColumns resolves each column to the first matching header.
func detectImportColumns(headers []string) map[models.ImportColumn]int {
	index := map[models.ImportColumn]int{}
	set := func(column models.ImportColumn, i int) {
		if _, ok := index[column]; !ok {
			index[column] = i
		}
	}
	for i, raw := range headers {
		h := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case h == "":
		case h == "employee_full_name" || h == "employee" || strings.Contains(h, "сотрудник"):
			set(models.ColumnEmployee, i)
		case h == "full_name" || h == "name" || strings.Contains(h, "клиент"):
			set(models.ColumnName, i)
		case h == "phone" || strings.Contains(h, "телефон"):
			set(models.ColumnPhone, i)
		case h == "email" || h == "e-mail" || strings.Contains(h, "почт"):
			set(models.ColumnEmail, i)
		case h == "group" || h == "holding" || strings.Contains(h, "групп") || strings.Contains(h, "холдинг"):
			set(models.ColumnGroup, i)
		case h == "address" || strings.Contains(h, "адрес"):
			set(models.ColumnAddress, i)
		case h == "trading_point" || strings.Contains(h, "торгов") && strings.Contains(h, "точк"):
			set(models.ColumnTradingPoint, i)
		}
	}
	return index
}

var legalForms = map[string]bool{"ООО": true, "ИП": true, "ЗАО": true, "ОАО": true, "АО": true, "ПАО": true, "НКО": true}

// NormalizeCompanyName collapses whitespace and upper-cases known legal-entity abbreviations.
func NormalizeCompanyName(raw string) string {
	words := strings.Fields(raw)
	for i, word := range words {
		if upper := strings.ToUpper(word); legalForms[upper] {
			words[i] = upper
		}
	}
	return strings.Join(words, " ")
}

// NormalizePhone keeps digits and '+', rewrites a leading 8 or 7 to +7 and accepts only Russian
// numbers of the form +7XXXXXXXXXX.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r == '+' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	phone := b.String()
	switch {
	case strings.HasPrefix(phone, "8"):
		phone = "+7" + phone[1:]
	case strings.HasPrefix(phone, "7"):
		phone = "+" + phone
	}
	if len(phone) != 12 || !strings.HasPrefix(phone, "+7") || strings.Count(phone, "+") != 1 {
		return "", false
	}
	return phone, true
}

func collapseSpaces(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// overwrittenColumns lists the columns an update writes: every column present in the file except the
// name it is matched on. Empty or rejected cells clear the stored value.
func overwrittenColumns(present []models.ImportColumn) map[models.ImportColumn]bool {
	columns := make(map[models.ImportColumn]bool, len(present))
	for _, column := range present {
		if column != models.ColumnName {
			columns[column] = true
		}
	}
	return columns
}

func employeeMissing(row models.ClientImportRow) models.ImportRowIssue {
	return models.ImportRowIssue{Line: row.Line, Name: row.Name, Message: fmt.Sprintf("employee %q not found", row.EmployeeName)}
}
