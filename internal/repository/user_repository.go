package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldops-api/internal/models"
)

const userColumns = `id, username, email, password_hash, full_name, role, active, last_login, created_at, updated_at`

// UserRepository stores employee and moderator accounts.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByUsername matches the login name case-insensitively.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "find user by username", `LOWER(username) = LOWER($1)`, username)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "find user by id", `id = $1`, id)
}

// FindEmployeeByName resolves a roster's employee column: exact full name or username, active accounts
// first, then the oldest.
func (r *UserRepository) FindEmployeeByName(ctx context.Context, name string) (*models.User, error) {
	return r.getOne(ctx, "find employee by name",
		`role = $1 AND (full_name = $2 OR LOWER(username) = LOWER($2)) ORDER BY active DESC, created_at ASC`,
		models.RoleEmployee, name)
}

// getOne returns sql.ErrNoRows unwrapped so services can map it to 404.
func (r *UserRepository) getOne(ctx context.Context, op, where string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the bcrypt hash. An unknown id yields sql.ErrNoRows.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List pages through accounts, active ones first, alphabetically by full name.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var p predicates
	if filter.Role != nil {
		p.add("role = ?", *filter.Role)
	}
	if filter.Active != nil {
		p.add("active = ?", *filter.Active)
	}
	if filter.Search != "" {
		p.add("(LOWER(username) LIKE ? OR LOWER(full_name) LIKE ?)", likePattern(filter.Search))
	}

	_, pageSize, offset := models.NormalizePage(filter.Page, filter.PageSize, 100)
	listQuery := fmt.Sprintf("SELECT %s FROM users%s ORDER BY active DESC, full_name ASC LIMIT %d OFFSET %d", userColumns, p.where(), pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, p.args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"+p.where(), p.args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// Create inserts user, assigning an id and timestamps when missing. A taken username surfaces as the
// driver's unique violation.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.NamedExecContext(ctx, `INSERT INTO users (`+userColumns+`)
	VALUES (:id, :username, :email, :password_hash, :full_name, :role, :active, :last_login, :created_at, :updated_at)`, user)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
