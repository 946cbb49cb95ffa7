package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/models"
)

func TestClientUpsertByNameCreates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	phone := "+79161234567"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("ООО Ромашка").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM clients WHERE name = $1 ORDER BY created_at ASC LIMIT 1 FOR UPDATE")).
		WithArgs("ООО Ромашка").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clients")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO client_groups")).
		WithArgs(sqlmock.AnyArg(), "Магнит", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("group-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO client_group_members")).
		WithArgs(sqlmock.AnyArg(), "group-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.UpsertByName(context.Background(), ClientUpsert{
		Name:      "ООО Ромашка",
		Phone:     &phone,
		GroupName: "Магнит",
		Columns:   map[models.ImportColumn]bool{models.ColumnName: true, models.ColumnPhone: true, models.ColumnGroup: true},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientUpsertByNameUpdatesOnlyPresentColumns(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	phone := "+79161234567"
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("ООО Ромашка").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("ООО Ромашка").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("client-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clients SET phone = $1, address = $2, updated_at = $3 WHERE id = $4")).
		WithArgs(&phone, "Москва, Тверская 1", sqlmock.AnyArg(), "client-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.UpsertByName(context.Background(), ClientUpsert{
		Name:    "ООО Ромашка",
		Phone:   &phone,
		Address: "Москва, Тверская 1",
		Columns: map[models.ImportColumn]bool{models.ColumnName: true, models.ColumnPhone: true, models.ColumnAddress: true},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientUpsertByNameClearsRejectedValues(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("ООО Ромашка").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("ООО Ромашка").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("client-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clients SET phone = $1, email = $2, employee_id = $3, updated_at = $4 WHERE id = $5")).
		WithArgs(nil, nil, nil, sqlmock.AnyArg(), "client-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM client_group_members WHERE client_id = $1")).
		WithArgs("client-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	created, err := repo.UpsertByName(context.Background(), ClientUpsert{
		Name: "ООО Ромашка",
		Columns: map[models.ImportColumn]bool{
			models.ColumnPhone: true, models.ColumnEmail: true, models.ColumnEmployee: true, models.ColumnGroup: true,
		},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientUpsertRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("ИП Иванов").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clients")).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.UpsertByName(context.Background(), ClientUpsert{Name: "ИП Иванов"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientGetByIDLoadsGroups(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM clients WHERE id = $1")).
		WithArgs("client-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "phone", "email", "trading_point", "employee_id", "created_at", "updated_at"}).
			AddRow("client-1", "ООО Ромашка", "", nil, nil, "", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM client_group_members m JOIN client_groups g")).
		WillReturnRows(sqlmock.NewRows([]string{"client_id", "id", "name", "created_at"}).
			AddRow("client-1", "group-1", "Магнит", now))

	client, err := repo.GetByID(context.Background(), "client-1")
	require.NoError(t, err)
	require.Len(t, client.Groups, 1)
	assert.Equal(t, "Магнит", client.Groups[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientExistingNames(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClientRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT name FROM clients WHERE name = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ООО Ромашка"))

	found, err := repo.ExistingNames(context.Background(), []string{"ООО Ромашка", "ИП Иванов"})
	require.NoError(t, err)
	assert.True(t, found["ООО Ромашка"])
	assert.False(t, found["ИП Иванов"])
}
