package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/pkg/database"
)

const clientColumns = `id, name, address, phone, email, trading_point, employee_id, created_at, updated_at`

// ClientRepository persists clients and their group memberships.
type ClientRepository struct {
	db *sqlx.DB
}

// NewClientRepository constructs the repository.
func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// GetByID fetches a client with its groups.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	var client models.Client
	if err := r.db.GetContext(ctx, &client, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	groups, err := r.groupsFor(ctx, []string{client.ID})
	if err != nil {
		return nil, err
	}
	client.Groups = groups[client.ID]
	return &client, nil
}

// List returns clients matching the filter with the total count.
func (r *ClientRepository) List(ctx context.Context, filter models.ClientFilter) ([]models.Client, int, error) {
	var p predicates
	if filter.Search != "" {
		p.add("(LOWER(c.name) LIKE ? OR LOWER(c.address) LIKE ?)", likePattern(filter.Search))
	}
	p.addIf(filter.EmployeeID, "c.employee_id = ?")
	p.addIf(filter.GroupID, "EXISTS (SELECT 1 FROM client_group_members m WHERE m.client_id = c.id AND m.group_id = ?)")
	where, args := p.where(), p.args

	_, pageSize, offset := models.NormalizePage(filter.Page, filter.PageSize, 200)
	query := fmt.Sprintf(`SELECT c.id, c.name, c.address, c.phone, c.email, c.trading_point, c.employee_id, c.created_at, c.updated_at
	FROM clients c%s ORDER BY c.name ASC LIMIT %d OFFSET %d`, where, pageSize, offset)

	var clients []models.Client
	if err := r.db.SelectContext(ctx, &clients, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM clients c"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}
	if len(clients) == 0 {
		return clients, total, nil
	}

	ids := make([]string, len(clients))
	for i := range clients {
		ids[i] = clients[i].ID
	}
	groups, err := r.groupsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range clients {
		clients[i].Groups = groups[clients[i].ID]
	}
	return clients, total, nil
}

// ExistingNames returns which of the given names already belong to a client.
func (r *ClientRepository) ExistingNames(ctx context.Context, names []string) (map[string]bool, error) {
	result := make(map[string]bool, len(names))
	if len(names) == 0 {
		return result, nil
	}
	const query = `SELECT DISTINCT name FROM clients WHERE name = ANY($1)`
	var found []string
	if err := r.db.SelectContext(ctx, &found, query, pq.Array(names)); err != nil {
		return nil, fmt.Errorf("lookup client names: %w", err)
	}
	for _, name := range found {
		result[name] = true
	}
	return result, nil
}

// ClientUpsert carries one import row. Columns marks the fields an update overwrites; a marked field with
// an empty value is cleared. A marked group column replaces the client's memberships.
type ClientUpsert struct {
	Name         string
	Phone        *string
	Email        *string
	Address      string
	TradingPoint string
	EmployeeID   *string
	GroupName    string
	Columns      map[models.ImportColumn]bool
}

// UpsertByName updates the oldest client with the same name or creates a new one, in its own transaction.
// An advisory lock on the name serialises concurrent imports of a name that does not exist yet.
func (r *ClientRepository) UpsertByName(ctx context.Context, row ClientUpsert) (created bool, err error) {
	err = database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, row.Name); err != nil {
			return fmt.Errorf("lock client name: %w", err)
		}
		var clientID string
		const lockQuery = `SELECT id FROM clients WHERE name = $1 ORDER BY created_at ASC LIMIT 1 FOR UPDATE`
		lookupErr := tx.GetContext(ctx, &clientID, lockQuery, row.Name)
		now := time.Now().UTC()

		switch {
		case errors.Is(lookupErr, sql.ErrNoRows):
			clientID = uuid.NewString()
			created = true
			const insert = `INSERT INTO clients (id, name, address, phone, email, trading_point, employee_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`
			if _, err := tx.ExecContext(ctx, insert, clientID, row.Name, row.Address, row.Phone, row.Email, row.TradingPoint, row.EmployeeID, now); err != nil {
				return fmt.Errorf("insert client: %w", err)
			}
		case lookupErr != nil:
			return fmt.Errorf("lock client: %w", lookupErr)
		default:
			sets, args := row.updateSet()
			args = append(args, now, clientID)
			sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)-1))
			update := fmt.Sprintf("UPDATE clients SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
			if _, err := tx.ExecContext(ctx, update, args...); err != nil {
				return fmt.Errorf("update client: %w", err)
			}
		}

		if !created && row.Columns[models.ColumnGroup] {
			if _, err := tx.ExecContext(ctx, `DELETE FROM client_group_members WHERE client_id = $1`, clientID); err != nil {
				return fmt.Errorf("clear client groups: %w", err)
			}
		}
		if row.GroupName == "" {
			return nil
		}
		groupID, err := getOrCreateGroup(ctx, tx, row.GroupName)
		if err != nil {
			return err
		}
		const member = `INSERT INTO client_group_members (client_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		if _, err := tx.ExecContext(ctx, member, clientID, groupID); err != nil {
			return fmt.Errorf("add client to group: %w", err)
		}
		return nil
	})
	return created, err
}

func (row ClientUpsert) updateSet() ([]string, []interface{}) {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 7)
	add := func(column models.ImportColumn, sqlColumn string, value interface{}) {
		if !row.Columns[column] {
			return
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", sqlColumn, len(args)))
	}
	add(models.ColumnPhone, "phone", row.Phone)
	add(models.ColumnEmail, "email", row.Email)
	add(models.ColumnAddress, "address", row.Address)
	add(models.ColumnTradingPoint, "trading_point", row.TradingPoint)
	add(models.ColumnEmployee, "employee_id", row.EmployeeID)
	return sets, args
}

func getOrCreateGroup(ctx context.Context, tx *sqlx.Tx, name string) (string, error) {
	const query = `INSERT INTO client_groups (id, name, created_at) VALUES ($1, $2, $3)
	ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`
	var id string
	if err := tx.GetContext(ctx, &id, query, uuid.NewString(), name, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("get or create group: %w", err)
	}
	return id, nil
}

func (r *ClientRepository) groupsFor(ctx context.Context, clientIDs []string) (map[string][]models.ClientGroup, error) {
	const query = `SELECT m.client_id, g.id, g.name, g.created_at
	FROM client_group_members m JOIN client_groups g ON g.id = m.group_id
	WHERE m.client_id = ANY($1) ORDER BY g.name`
	var rows []struct {
		ClientID string `db:"client_id"`
		models.ClientGroup
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(clientIDs)); err != nil {
		return nil, fmt.Errorf("list client groups: %w", err)
	}
	result := make(map[string][]models.ClientGroup, len(clientIDs))
	for _, row := range rows {
		result[row.ClientID] = append(result[row.ClientID], row.ClientGroup)
	}
	return result, nil
}
