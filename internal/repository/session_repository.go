package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/pkg/database"
)

const sessionColumns = `id, user_id, token_digest, expires_at, created_at, revoked_at, replaced_by, ip_address, user_agent`

// ErrSessionConsumed is returned by Rotate when the presented session was already revoked, which
// happens when the same refresh token is used twice.
var ErrSessionConsumed = errors.New("refresh session already consumed")

// SessionRepository stores refresh token sessions.
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.RefreshToken) error {
	return insertSession(ctx, r.db, session)
}

// FindByDigest looks a session up by the digest of its token.
func (r *SessionRepository) FindByDigest(ctx context.Context, digest string) (*models.RefreshToken, error) {
	query := `SELECT ` + sessionColumns + ` FROM refresh_tokens WHERE token_digest = $1`
	var session models.RefreshToken
	if err := r.db.GetContext(ctx, &session, query, digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// Rotate revokes current and inserts next in one transaction. Two concurrent refreshes with the same
// token cannot both succeed: the loser gets ErrSessionConsumed.
func (r *SessionRepository) Rotate(ctx context.Context, currentID string, next *models.RefreshToken) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := insertSession(ctx, tx, next); err != nil {
			return err
		}
		const query = `UPDATE refresh_tokens SET revoked_at = $2, replaced_by = $3 WHERE id = $1 AND revoked_at IS NULL`
		result, err := tx.ExecContext(ctx, query, currentID, next.CreatedAt, next.ID)
		if err != nil {
			return fmt.Errorf("revoke rotated session: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check rotated session rows: %w", err)
		}
		if rows == 0 {
			return ErrSessionConsumed
		}
		return nil
	})
}

// Revoke ends one session. Revoking an already revoked session is a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser ends every live session of a user and reports how many were ended.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return result.RowsAffected()
}

func insertSession(ctx context.Context, db sqlx.ExtContext, session *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (` + sessionColumns + `)
	VALUES (:id, :user_id, :token_digest, :expires_at, :created_at, :revoked_at, :replaced_by, :ip_address, :user_agent)`
	if _, err := sqlx.NamedExecContext(ctx, db, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}
