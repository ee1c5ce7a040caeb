package advances

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the advance does not exist in the organization scope.
var ErrNotFound = errors.New("record not found")

// Repository defines persistence for advance payments.
type Repository interface {
	OutstandingBalance(ctx context.Context, organizationID, farmerID int64) (float64, error)
	ListByFarmer(ctx context.Context, organizationID, farmerID int64) ([]Advance, error)
	Get(ctx context.Context, organizationID, id int64) (*Advance, error)
	Create(ctx context.Context, a Advance) (int64, error)
	UpdateStatus(ctx context.Context, organizationID, id int64, status Status) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// OutstandingBalance sums all advances for the farmer that have not been
// reversed. Returns 0 when no rows match; never returns a negative value.
func (r *repository) OutstandingBalance(ctx context.Context, organizationID, farmerID int64) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM advance_payments
		WHERE organization_id = $1 AND farmer_id = $2 AND status <> 'REVERSED'
	`
	var balance float64
	if err := r.pool.QueryRow(ctx, query, organizationID, farmerID).Scan(&balance); err != nil {
		return 0, err
	}
	if balance < 0 {
		balance = 0
	}
	return balance, nil
}

func (r *repository) ListByFarmer(ctx context.Context, organizationID, farmerID int64) ([]Advance, error) {
	query := `
		SELECT id, organization_id, farmer_id, amount, status, purpose,
		       recorded_by, created_at, updated_at
		FROM advance_payments
		WHERE organization_id = $1 AND farmer_id = $2
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query, organizationID, farmerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var advances []Advance
	for rows.Next() {
		var a Advance
		err := rows.Scan(
			&a.ID, &a.OrganizationID, &a.FarmerID, &a.Amount, &a.Status,
			&a.Purpose, &a.RecordedBy, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		advances = append(advances, a)
	}

	return advances, rows.Err()
}

func (r *repository) Get(ctx context.Context, organizationID, id int64) (*Advance, error) {
	query := `
		SELECT id, organization_id, farmer_id, amount, status, purpose,
		       recorded_by, created_at, updated_at
		FROM advance_payments
		WHERE organization_id = $1 AND id = $2
	`
	var a Advance
	err := r.pool.QueryRow(ctx, query, organizationID, id).Scan(
		&a.ID, &a.OrganizationID, &a.FarmerID, &a.Amount, &a.Status,
		&a.Purpose, &a.RecordedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *repository) Create(ctx context.Context, a Advance) (int64, error) {
	query := `
		INSERT INTO advance_payments (
			organization_id, farmer_id, amount, status, purpose, recorded_by
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		a.OrganizationID, a.FarmerID, a.Amount, a.Status, a.Purpose, a.RecordedBy,
	).Scan(&id)
	return id, err
}

func (r *repository) UpdateStatus(ctx context.Context, organizationID, id int64, status Status) error {
	query := `
		UPDATE advance_payments
		SET status = $1, updated_at = NOW()
		WHERE organization_id = $2 AND id = $3
	`
	cmdTag, err := r.pool.Exec(ctx, query, status, organizationID, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
