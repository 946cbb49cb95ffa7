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

func TestSessionFindByDigest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "token_digest", "expires_at", "created_at", "revoked_at", "replaced_by", "ip_address", "user_agent"}).
		AddRow("rt1", "u1", "abc", now.Add(time.Hour), now, nil, nil, "10.0.0.1", "ua")
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token_digest = $1")).
		WithArgs("abc").
		WillReturnRows(rows)

	session, err := repo.FindByDigest(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.UserID)
	assert.False(t, session.Revoked())

	mock.ExpectQuery("FROM refresh_tokens").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByDigest(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRotate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	next := &models.RefreshToken{ID: "rt2", UserID: "u1", TokenDigest: "def", ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3 WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("rt1", next.CreatedAt, "rt2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Rotate(context.Background(), "rt1", next))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRotateAlreadyConsumed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE refresh_tokens").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), "rt1", &models.RefreshToken{ID: "rt2", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrSessionConsumed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE user_id = $1 AND revoked_at IS NULL")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeAllForUser(context.Background(), "u1", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	log := &models.AuditLog{Action: models.AuditActionLogin, Resource: "auth"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
	assert.False(t, log.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
