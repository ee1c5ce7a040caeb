package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmtally/farmtally/internal/lorries"
	"github.com/farmtally/farmtally/internal/platform/db"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrFarmerAlreadyAdded maps the partial unique index on open
	// (lorry_id, farmer_id) pairs; under concurrent creation exactly one
	// insert wins and the loser sees this.
	ErrFarmerAlreadyAdded = errors.New("farmer already added to this lorry")
)

// Repository defines persistence for the settlement pipeline.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDelivery(ctx context.Context, organizationID, id int64) (*Delivery, error)
	GetDeliveryWithDetails(ctx context.Context, organizationID, id int64) (*WithDetails, error)
	List(ctx context.Context, organizationID int64, req ListDeliveriesRequest) ([]WithDetails, int, error)
	CountOpenByLorry(ctx context.Context, lorryID int64) (int, error)

	// Gate lookups
	GetLorryInfo(ctx context.Context, organizationID, lorryID int64) (*LorryInfo, error)
	GetFarmerInfo(ctx context.Context, organizationID, farmerID int64) (*FarmerInfo, error)
	GetOrgPricePerKg(ctx context.Context, organizationID int64) (float64, error)
}

// TxRepository exposes transactional write operations. Batch processing
// touches deliveries, farmer stats, and the lorry within one transaction.
type TxRepository interface {
	CreateDelivery(ctx context.Context, d Delivery) (int64, error)
	UpdateDelivery(ctx context.Context, id int64, updates map[string]interface{}) error
	DeleteDelivery(ctx context.Context, id int64) error
	CountOpenByLorry(ctx context.Context, lorryID int64) (int, error)
	BulkUpdateStatus(ctx context.Context, lorryID int64, from, to DeliveryStatus) (int64, error)
	ListLorryDeliveriesForUpdate(ctx context.Context, lorryID int64, status DeliveryStatus) ([]Delivery, error)
	CompleteDelivery(ctx context.Context, d *Delivery) error
	IncrementFarmerStats(ctx context.Context, organizationID, farmerID int64, earnings float64) error
	GetLorryForUpdate(ctx context.Context, organizationID, lorryID int64) (*LorryInfo, error)
	UpdateLorryStatus(ctx context.Context, lorryID int64, status lorries.Status) error
	ReleaseLorry(ctx context.Context, lorryID int64) error
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

// ============================================================================
// DELIVERY READS
// ============================================================================

const deliveryColumns = `
	id, organization_id, lorry_id, farmer_id, field_manager_id,
	bags_count, individual_weights, moisture_content,
	gross_weight, standard_deduction, quality_deduction, quality_grade, net_weight,
	price_per_kg, total_value, advance_amount, interest_charges, final_amount,
	status, created_at, updated_at
`

func scanDelivery(row pgx.Row) (*Delivery, error) {
	var d Delivery
	err := row.Scan(
		&d.ID, &d.OrganizationID, &d.LorryID, &d.FarmerID, &d.FieldManagerID,
		&d.BagsCount, &d.IndividualWeights, &d.MoistureContent,
		&d.GrossWeight, &d.StandardDeduction, &d.QualityDeduction, &d.QualityGrade, &d.NetWeight,
		&d.PricePerKg, &d.TotalValue, &d.AdvanceAmount, &d.InterestCharges, &d.FinalAmount,
		&d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) GetDelivery(ctx context.Context, organizationID, id int64) (*Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE organization_id = $1 AND id = $2`
	return scanDelivery(r.db.QueryRow(ctx, query, organizationID, id))
}

func (r *repository) GetDeliveryWithDetails(ctx context.Context, organizationID, id int64) (*WithDetails, error) {
	query := `
		SELECT d.id, d.organization_id, d.lorry_id, d.farmer_id, d.field_manager_id,
		       d.bags_count, d.individual_weights, d.moisture_content,
		       d.gross_weight, d.standard_deduction, d.quality_deduction, d.quality_grade, d.net_weight,
		       d.price_per_kg, d.total_value, d.advance_amount, d.interest_charges, d.final_amount,
		       d.status, d.created_at, d.updated_at,
		       f.name AS farmer_name,
		       l.plate_number AS lorry_plate_number,
		       u.name AS manager_name
		FROM deliveries d
		INNER JOIN farmers f ON f.id = d.farmer_id
		INNER JOIN lorries l ON l.id = d.lorry_id
		INNER JOIN users u ON u.id = d.field_manager_id
		WHERE d.organization_id = $1 AND d.id = $2
	`
	var wd WithDetails
	err := r.db.QueryRow(ctx, query, organizationID, id).Scan(
		&wd.ID, &wd.OrganizationID, &wd.LorryID, &wd.FarmerID, &wd.FieldManagerID,
		&wd.BagsCount, &wd.IndividualWeights, &wd.MoistureContent,
		&wd.GrossWeight, &wd.StandardDeduction, &wd.QualityDeduction, &wd.QualityGrade, &wd.NetWeight,
		&wd.PricePerKg, &wd.TotalValue, &wd.AdvanceAmount, &wd.InterestCharges, &wd.FinalAmount,
		&wd.Status, &wd.CreatedAt, &wd.UpdatedAt,
		&wd.FarmerName, &wd.LorryPlateNumber, &wd.ManagerName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &wd, nil
}

func (r *repository) List(ctx context.Context, organizationID int64, req ListDeliveriesRequest) ([]WithDetails, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	conditions = append(conditions, fmt.Sprintf("d.organization_id = $%d", argPos))
	args = append(args, organizationID)
	argPos++

	if req.LorryID != nil {
		conditions = append(conditions, fmt.Sprintf("d.lorry_id = $%d", argPos))
		args = append(args, *req.LorryID)
		argPos++
	}

	if req.FarmerID != nil {
		conditions = append(conditions, fmt.Sprintf("d.farmer_id = $%d", argPos))
		args = append(args, *req.FarmerID)
		argPos++
	}

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("d.status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM deliveries d %s`, whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT d.id, d.organization_id, d.lorry_id, d.farmer_id, d.field_manager_id,
		       d.bags_count, d.individual_weights, d.moisture_content,
		       d.gross_weight, d.standard_deduction, d.quality_deduction, d.quality_grade, d.net_weight,
		       d.price_per_kg, d.total_value, d.advance_amount, d.interest_charges, d.final_amount,
		       d.status, d.created_at, d.updated_at,
		       f.name AS farmer_name,
		       l.plate_number AS lorry_plate_number,
		       u.name AS manager_name
		FROM deliveries d
		INNER JOIN farmers f ON f.id = d.farmer_id
		INNER JOIN lorries l ON l.id = d.lorry_id
		INNER JOIN users u ON u.id = d.field_manager_id
		%s
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var deliveries []WithDetails
	for rows.Next() {
		var wd WithDetails
		err := rows.Scan(
			&wd.ID, &wd.OrganizationID, &wd.LorryID, &wd.FarmerID, &wd.FieldManagerID,
			&wd.BagsCount, &wd.IndividualWeights, &wd.MoistureContent,
			&wd.GrossWeight, &wd.StandardDeduction, &wd.QualityDeduction, &wd.QualityGrade, &wd.NetWeight,
			&wd.PricePerKg, &wd.TotalValue, &wd.AdvanceAmount, &wd.InterestCharges, &wd.FinalAmount,
			&wd.Status, &wd.CreatedAt, &wd.UpdatedAt,
			&wd.FarmerName, &wd.LorryPlateNumber, &wd.ManagerName,
		)
		if err != nil {
			return nil, 0, err
		}
		deliveries = append(deliveries, wd)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// CountOpenByLorry counts only PENDING and IN_PROGRESS deliveries. Completed
// rows from earlier trips stay behind after the lorry is released, so a raw
// count would misreport a reused lorry.
func (r *repository) CountOpenByLorry(ctx context.Context, lorryID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM deliveries
		WHERE lorry_id = $1 AND status IN ('PENDING', 'IN_PROGRESS')
	`, lorryID).Scan(&count)
	return count, err
}

// ============================================================================
// GATE LOOKUPS
// ============================================================================

func (r *repository) GetLorryInfo(ctx context.Context, organizationID, lorryID int64) (*LorryInfo, error) {
	return r.getLorry(ctx, organizationID, lorryID, false)
}

func (r *repository) GetLorryForUpdate(ctx context.Context, organizationID, lorryID int64) (*LorryInfo, error) {
	return r.getLorry(ctx, organizationID, lorryID, true)
}

func (r *repository) getLorry(ctx context.Context, organizationID, lorryID int64, forUpdate bool) (*LorryInfo, error) {
	query := `
		SELECT id, organization_id, plate_number, status, assigned_manager_id
		FROM lorries
		WHERE organization_id = $1 AND id = $2
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var info LorryInfo
	err := r.db.QueryRow(ctx, query, organizationID, lorryID).Scan(
		&info.ID, &info.OrganizationID, &info.PlateNumber, &info.Status, &info.AssignedManagerID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &info, nil
}

func (r *repository) GetFarmerInfo(ctx context.Context, organizationID, farmerID int64) (*FarmerInfo, error) {
	query := `
		SELECT f.id, f.code, f.name, f.bank_account, m.active
		FROM farmers f
		INNER JOIN farmer_memberships m ON m.farmer_id = f.id
		WHERE m.organization_id = $1 AND f.id = $2
	`
	var info FarmerInfo
	err := r.db.QueryRow(ctx, query, organizationID, farmerID).Scan(
		&info.ID, &info.Code, &info.Name, &info.BankAccount, &info.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &info, nil
}

func (r *repository) GetOrgPricePerKg(ctx context.Context, organizationID int64) (float64, error) {
	query := `SELECT COALESCE(price_per_kg, 0) FROM organization_settings WHERE organization_id = $1`
	var price float64
	err := r.db.QueryRow(ctx, query, organizationID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return price, nil
}

// ============================================================================
// TRANSACTIONAL WRITES
// ============================================================================

func (r *repository) CreateDelivery(ctx context.Context, d Delivery) (int64, error) {
	query := `
		INSERT INTO deliveries (
			organization_id, lorry_id, farmer_id, field_manager_id,
			bags_count, individual_weights, moisture_content,
			gross_weight, standard_deduction, quality_deduction, net_weight,
			advance_amount, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRow(ctx, query,
		d.OrganizationID, d.LorryID, d.FarmerID, d.FieldManagerID,
		d.BagsCount, d.IndividualWeights, d.MoistureContent,
		d.GrossWeight, d.StandardDeduction, d.QualityDeduction, d.NetWeight,
		d.AdvanceAmount, d.Status,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrFarmerAlreadyAdded
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) UpdateDelivery(ctx context.Context, id int64, updates map[string]interface{}) error {
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

	query := fmt.Sprintf(`UPDATE deliveries SET %s WHERE id = $%d`, strings.Join(setClauses, ", "), argPos)

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteDelivery(ctx context.Context, id int64) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) BulkUpdateStatus(ctx context.Context, lorryID int64, from, to DeliveryStatus) (int64, error) {
	query := `
		UPDATE deliveries
		SET status = $1, updated_at = NOW()
		WHERE lorry_id = $2 AND status = $3
	`
	cmdTag, err := r.db.Exec(ctx, query, to, lorryID, from)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (r *repository) ListLorryDeliveriesForUpdate(ctx context.Context, lorryID int64, status DeliveryStatus) ([]Delivery, error) {
	query := `
		SELECT ` + deliveryColumns + `
		FROM deliveries
		WHERE lorry_id = $1 AND status = $2
		ORDER BY id
		FOR UPDATE
	`
	rows, err := r.db.Query(ctx, query, lorryID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

func (r *repository) CompleteDelivery(ctx context.Context, d *Delivery) error {
	query := `
		UPDATE deliveries
		SET standard_deduction = $1, net_weight = $2, price_per_kg = $3,
		    total_value = $4, advance_amount = $5, interest_charges = $6,
		    final_amount = $7, status = $8, updated_at = NOW()
		WHERE id = $9
	`
	cmdTag, err := r.db.Exec(ctx, query,
		d.StandardDeduction, d.NetWeight, d.PricePerKg,
		d.TotalValue, d.AdvanceAmount, d.InterestCharges,
		d.FinalAmount, d.Status, d.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementFarmerStats applies settlement outcomes to the farmer's org
// membership. Arithmetic happens in SQL so concurrent processing of other
// lorries for the same farmer cannot lose updates.
func (r *repository) IncrementFarmerStats(ctx context.Context, organizationID, farmerID int64, earnings float64) error {
	query := `
		UPDATE farmer_memberships
		SET total_deliveries = total_deliveries + 1,
		    total_earnings = total_earnings + $1
		WHERE organization_id = $2 AND farmer_id = $3
	`
	cmdTag, err := r.db.Exec(ctx, query, earnings, organizationID, farmerID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateLorryStatus(ctx context.Context, lorryID int64, status lorries.Status) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE lorries SET status = $1, updated_at = NOW() WHERE id = $2`, status, lorryID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseLorry resets the lorry after its deliveries are settled.
func (r *repository) ReleaseLorry(ctx context.Context, lorryID int64) error {
	query := `
		UPDATE lorries
		SET status = $1, assigned_manager_id = NULL, assigned_at = NULL, updated_at = NOW()
		WHERE id = $2
	`
	cmdTag, err := r.db.Exec(ctx, query, lorries.StatusAvailable, lorryID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
