package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/repository"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/storage"
)

type clientImportStoreStub struct {
	names   map[string]bool
	upserts []repository.ClientUpsert
	failOn  string
}

func (s *clientImportStoreStub) ExistingNames(ctx context.Context, names []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, name := range names {
		if s.names[name] {
			out[name] = true
		}
	}
	return out, nil
}

func (s *clientImportStoreStub) UpsertByName(ctx context.Context, row repository.ClientUpsert) (bool, error) {
	if row.Name == s.failOn {
		return false, assert.AnError
	}
	s.upserts = append(s.upserts, row)
	if s.names[row.Name] {
		return false, nil
	}
	s.names[row.Name] = true
	return true, nil
}

type employeeLookupStub map[string]string

func (s employeeLookupStub) FindEmployeeByName(ctx context.Context, name string) (*models.User, error) {
	if id, ok := s[name]; ok {
		return &models.User{ID: id, Role: models.RoleEmployee}, nil
	}
	return nil, sql.ErrNoRows
}

const rosterCSV = "\ufeffКлиент;Телефон;Email;Группа;Сотрудник;Адрес торговой точки\n" +
	"ооо   Ромашка;8 (912) 345-67-89;shop@example.com;Север;Иван Петров;ул. Ленина 1\n" +
	"  ;;;;;\n" +
	"ИП Сидоров;12345;nope;;Нет Такого;\n" +
	"ООО Ромашка;;;;;ул. Мира 2\n"

func newImportFixture(t *testing.T) (*ClientImportService, *clientImportStoreStub, string) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	store := &clientImportStoreStub{names: map[string]bool{"ИП Сидоров": true}}
	svc := NewClientImportService(store, employeeLookupStub{"Иван Петров": "emp-7"}, files,
		storage.NewSignedURLSigner("import-secret", storage.AudienceClientImport, time.Hour), &auditRecorderStub{}, nil, nil, ClientImportConfig{})
	return svc, store, dir
}

func pendingFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, importUploadsDir))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestClientImportPreviewAndConfirm(t *testing.T) {
	svc, store, dir := newImportFixture(t)

	preview, err := svc.Preview(context.Background(), "roster.csv", int64(len(rosterCSV)), strings.NewReader(rosterCSV), moderator)
	require.NoError(t, err)
	assert.NotEmpty(t, preview.Token)
	assert.Equal(t, 1, preview.Skipped)
	require.Len(t, preview.Rows, 3)
	assert.Equal(t, "ООО Ромашка", preview.Rows[0].Name)
	require.NotNil(t, preview.Rows[0].Phone)
	assert.Equal(t, "+79123456789", *preview.Rows[0].Phone)
	assert.Equal(t, "ул. Ленина 1", preview.Rows[0].Address)
	assert.Nil(t, preview.Rows[1].Phone)
	assert.Nil(t, preview.Rows[1].Email)
	assert.True(t, preview.Rows[1].Exists)
	assert.True(t, preview.Rows[2].Exists)
	assert.Equal(t, 1, preview.ToCreate)
	assert.Equal(t, 2, preview.ToUpdate)
	assert.Len(t, preview.Warnings, 3)
	assert.Empty(t, store.upserts)
	assert.Len(t, pendingFiles(t, dir), 1)

	_, err = svc.Confirm(context.Background(), preview.Token, &models.JWTClaims{UserID: "mod-2", Role: models.RoleModerator})
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))

	result, err := svc.Confirm(context.Background(), preview.Token, moderator)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Errors)
	assert.Empty(t, pendingFiles(t, dir))

	require.Len(t, store.upserts, 3)
	first := store.upserts[0]
	require.NotNil(t, first.EmployeeID)
	assert.Equal(t, "emp-7", *first.EmployeeID)
	assert.Equal(t, "Север", first.GroupName)
	assert.True(t, first.Columns[models.ColumnEmployee])
	assert.Nil(t, store.upserts[1].EmployeeID)
	assert.True(t, store.upserts[1].Columns[models.ColumnEmployee])
	assert.Nil(t, store.upserts[1].Phone)
	assert.True(t, store.upserts[1].Columns[models.ColumnPhone])
	assert.Equal(t, map[models.ImportColumn]bool{
		models.ColumnPhone: true, models.ColumnEmail: true, models.ColumnGroup: true,
		models.ColumnEmployee: true, models.ColumnAddress: true,
	}, store.upserts[2].Columns)

	_, err = svc.Confirm(context.Background(), preview.Token, moderator)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}

func TestClientImportConfirmReimportOnlyUpdates(t *testing.T) {
	svc, store, _ := newImportFixture(t)
	for i, want := range []int{1, 0} {
		preview, err := svc.Preview(context.Background(), "roster.csv", int64(len(rosterCSV)), strings.NewReader(rosterCSV), moderator)
		require.NoError(t, err)
		result, err := svc.Confirm(context.Background(), preview.Token, moderator)
		require.NoError(t, err)
		assert.Equal(t, want, result.Created, "run %d", i)
	}
	assert.Len(t, store.upserts, 6)
}

func TestClientImportReimportClearsRejectedPhone(t *testing.T) {
	svc, store, _ := newImportFixture(t)
	const valid = "Клиент;Телефон\nООО Ромашка;89161234567\n"
	const invalid = "Клиент;Телефон\nООО Ромашка;123\n"

	for _, content := range []string{valid, invalid} {
		preview, err := svc.Preview(context.Background(), "phones.csv", int64(len(content)), strings.NewReader(content), moderator)
		require.NoError(t, err)
		_, err = svc.Confirm(context.Background(), preview.Token, moderator)
		require.NoError(t, err)
	}

	require.Len(t, store.upserts, 2)
	require.NotNil(t, store.upserts[0].Phone)
	assert.Equal(t, "+79161234567", *store.upserts[0].Phone)
	assert.Nil(t, store.upserts[1].Phone)
	assert.True(t, store.upserts[1].Columns[models.ColumnPhone])
	assert.False(t, store.upserts[1].Columns[models.ColumnEmail])
}

func TestClientImportDiscardRemovesUpload(t *testing.T) {
	svc, store, dir := newImportFixture(t)
	preview, err := svc.Preview(context.Background(), "roster.csv", int64(len(rosterCSV)), strings.NewReader(rosterCSV), moderator)
	require.NoError(t, err)
	require.Len(t, pendingFiles(t, dir), 1)

	err = svc.Discard(preview.Token, &models.JWTClaims{UserID: "mod-2", Role: models.RoleModerator})
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))
	assert.Len(t, pendingFiles(t, dir), 1)

	require.NoError(t, svc.Discard(preview.Token, moderator))
	assert.Empty(t, pendingFiles(t, dir))
	assert.Empty(t, store.upserts)

	_, err = svc.Confirm(context.Background(), preview.Token, moderator)
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))
}

func TestClientImportRowFailureContinues(t *testing.T) {
	svc, store, _ := newImportFixture(t)
	store.failOn = "ИП Сидоров"

	preview, err := svc.Preview(context.Background(), "roster.csv", int64(len(rosterCSV)), strings.NewReader(rosterCSV), moderator)
	require.NoError(t, err)
	result, err := svc.Confirm(context.Background(), preview.Token, moderator)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 4, result.Errors[0].Line)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Updated)
}

func TestClientImportPreviewRejects(t *testing.T) {
	svc, _, dir := newImportFixture(t)

	_, err := svc.Preview(context.Background(), "roster.csv", 10, strings.NewReader("name\nA\n"), employee)
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(err))

	_, err = svc.Preview(context.Background(), "roster.pdf", 10, strings.NewReader("x"), moderator)
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))

	_, err = svc.Preview(context.Background(), "roster.csv", 11*1024*1024, strings.NewReader("name\nA\n"), moderator)
	assert.Equal(t, appErrors.ErrPayloadTooLarge.Code, errCode(err))

	_, err = svc.Preview(context.Background(), "roster.csv", 20, strings.NewReader("phone;email\n1;2\n"), moderator)
	assert.Equal(t, appErrors.ErrMissingColumn.Code, errCode(err))
	assert.Empty(t, pendingFiles(t, dir))

	_, err = svc.Confirm(context.Background(), "garbage", moderator)
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
}

func TestNormalizeHelpers(t *testing.T) {
	assert.Equal(t, "ООО Рога и Копыта", NormalizeCompanyName("  ооо  Рога и   Копыта "))
	assert.Equal(t, "ПАО Банк", NormalizeCompanyName("пао Банк"))

	cases := map[string]string{
		"8 912 345 67 89":   "+79123456789",
		"7(912)3456789":     "+79123456789",
		"+7 912 345-67-89":  "+79123456789",
		"912 345 67 89":     "",
		"8 912 345 67 8900": "",
		"89161234567":       "+79161234567",
		"123":               "",
		"+12345678901":      "",
		"+1 (234) 567-8901": "",
	}
	for raw, want := range cases {
		got, ok := NormalizePhone(raw)
		assert.Equal(t, want, got, raw)
		assert.Equal(t, want != "", ok, raw)
	}
}
