package lorries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmtally/farmtally/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateDate = errors.New("request already exists for this date")
)

// Repository defines persistence for lorries and lorry requests.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLorry(ctx context.Context, organizationID, id int64) (*Lorry, error)
	ListLorries(ctx context.Context, organizationID int64) ([]Lorry, error)
	GetRequest(ctx context.Context, organizationID, id int64) (*Request, error)
	ListRequests(ctx context.Context, organizationID int64, status *RequestStatus) ([]Request, error)
	CreateRequest(ctx context.Context, req Request) (int64, error)
}

// TxRepository exposes transactional write operations.
type TxRepository interface {
	GetLorryForUpdate(ctx context.Context, organizationID, id int64) (*Lorry, error)
	UpdateLorry(ctx context.Context, id int64, updates map[string]interface{}) error
	UpdateRequestStatus(ctx context.Context, id int64, status RequestStatus, decidedBy int64, lorryID *int64) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const lorryColumns = `
	id, organization_id, plate_number, capacity_kg, status,
	assigned_manager_id, assigned_at, created_at, updated_at
`

func scanLorry(row pgx.Row) (*Lorry, error) {
	var l Lorry
	err := row.Scan(
		&l.ID, &l.OrganizationID, &l.PlateNumber, &l.CapacityKg, &l.Status,
		&l.AssignedManagerID, &l.AssignedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *repository) GetLorry(ctx context.Context, organizationID, id int64) (*Lorry, error) {
	query := `SELECT ` + lorryColumns + ` FROM lorries WHERE organization_id = $1 AND id = $2`
	return scanLorry(r.db.QueryRow(ctx, query, organizationID, id))
}

func (r *repository) ListLorries(ctx context.Context, organizationID int64) ([]Lorry, error) {
	query := `SELECT ` + lorryColumns + ` FROM lorries WHERE organization_id = $1 ORDER BY plate_number, id`
	rows, err := r.db.Query(ctx, query, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lorries []Lorry
	for rows.Next() {
		l, err := scanLorry(rows)
		if err != nil {
			return nil, err
		}
		lorries = append(lorries, *l)
	}
	return lorries, rows.Err()
}

// GetLorryForUpdate locks the lorry row for the rest of the transaction so
// two concurrent assignment requests cannot both succeed.
func (r *repository) GetLorryForUpdate(ctx context.Context, organizationID, id int64) (*Lorry, error) {
	query := `SELECT ` + lorryColumns + ` FROM lorries WHERE organization_id = $1 AND id = $2 FOR UPDATE`
	return scanLorry(r.db.QueryRow(ctx, query, organizationID, id))
}

func (r *repository) UpdateLorry(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	var setClauses []string
	var args []interface{}
	argPos := 1

	for field, value := range updates {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, argPos))
		args = append(args, value)
		argPos++
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now())
	argPos++

	args = append(args, id)

	query := fmt.Sprintf(`UPDATE lorries SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), argPos)

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const requestColumns = `
	id, organization_id, manager_id, requested_for, priority, status,
	lorry_id, decided_by, decided_at, created_at
`

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	err := row.Scan(
		&req.ID, &req.OrganizationID, &req.ManagerID, &req.RequestedFor,
		&req.Priority, &req.Status, &req.LorryID, &req.DecidedBy,
		&req.DecidedAt, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *repository) GetRequest(ctx context.Context, organizationID, id int64) (*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM lorry_requests WHERE organization_id = $1 AND id = $2`
	return scanRequest(r.db.QueryRow(ctx, query, organizationID, id))
}

func (r *repository) ListRequests(ctx context.Context, organizationID int64, status *RequestStatus) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM lorry_requests WHERE organization_id = $1`
	args := []interface{}{organizationID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY priority DESC, requested_for, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// CreateRequest inserts a lorry request. The partial unique index on
// (manager_id, requested_for) for PENDING/APPROVED rows enforces the
// one-request-per-manager-per-date rule; 23505 surfaces as ErrDuplicateDate.
func (r *repository) CreateRequest(ctx context.Context, req Request) (int64, error) {
	query := `
		INSERT INTO lorry_requests (
			organization_id, manager_id, requested_for, priority, status
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRow(ctx, query,
		req.OrganizationID, req.ManagerID, req.RequestedFor, req.Priority, req.Status,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateDate
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) UpdateRequestStatus(ctx context.Context, id int64, status RequestStatus, decidedBy int64, lorryID *int64) error {
	query := `
		UPDATE lorry_requests
		SET status = $1, decided_by = $2, decided_at = NOW(), lorry_id = $3
		WHERE id = $4
	`
	cmdTag, err := r.db.Exec(ctx, query, status, decidedBy, lorryID, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
