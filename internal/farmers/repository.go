package farmers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the farmer is absent or outside the org scope.
var ErrNotFound = errors.New("record not found")

// Repository defines read access to farmers and their org memberships.
// Writes to the cumulative stats happen inside the settlement batch
// transaction, not here.
type Repository interface {
	Get(ctx context.Context, organizationID, farmerID int64) (*WithStats, error)
	List(ctx context.Context, organizationID int64) ([]WithStats, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const withStatsColumns = `
	f.id, f.code, f.name, f.phone, f.bank_account, f.created_at, f.updated_at,
	m.farmer_id, m.organization_id, m.active, m.total_deliveries,
	m.total_earnings, m.quality_rating, m.joined_at
`

func scanWithStats(row pgx.Row) (*WithStats, error) {
	var ws WithStats
	err := row.Scan(
		&ws.Farmer.ID, &ws.Code, &ws.Name, &ws.Phone, &ws.BankAccount,
		&ws.Farmer.CreatedAt, &ws.Farmer.UpdatedAt,
		&ws.Membership.FarmerID, &ws.OrganizationID, &ws.Active,
		&ws.TotalDeliveries, &ws.TotalEarnings, &ws.QualityRating, &ws.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

func (r *repository) Get(ctx context.Context, organizationID, farmerID int64) (*WithStats, error) {
	query := `
		SELECT ` + withStatsColumns + `
		FROM farmers f
		INNER JOIN farmer_memberships m ON m.farmer_id = f.id
		WHERE m.organization_id = $1 AND f.id = $2
	`
	return scanWithStats(r.pool.QueryRow(ctx, query, organizationID, farmerID))
}

func (r *repository) List(ctx context.Context, organizationID int64) ([]WithStats, error) {
	query := `
		SELECT ` + withStatsColumns + `
		FROM farmers f
		INNER JOIN farmer_memberships m ON m.farmer_id = f.id
		WHERE m.organization_id = $1
		ORDER BY f.name, f.id
	`
	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WithStats
	for rows.Next() {
		ws, err := scanWithStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ws)
	}
	return out, rows.Err()
}
