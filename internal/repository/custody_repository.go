package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"cylinder-recon/internal/domain"
	"cylinder-recon/pkg/logger"
)

// CustodyRepository mutates bottle custody and rental periods. The composite
// methods run inside one transaction per bottle so a crash mid-approval never
// leaves a bottle assigned without a rental row or vice versa.
type CustodyRepository interface {
	GetBottle(ctx context.Context, orgID, barcode string) (*domain.Bottle, error)
	ListBottles(ctx context.Context, orgID string) ([]domain.Bottle, error)
	GetOpenRental(ctx context.Context, orgID, barcode string) (*domain.Rental, error)
	ShipBottle(ctx context.Context, orgID string, barcode string, rental domain.Rental) (created bool, err error)
	ReturnBottle(ctx context.Context, orgID, barcode, endDate, location string, at time.Time) error
	MarkEmpty(ctx context.Context, orgID, barcode string) error
	CreateDNSRentals(ctx context.Context, orgID string, rentals []domain.Rental) (int, error)
	DeleteDNSRentals(ctx context.Context, orgID, orderNumber string) (int64, error)
	RevertEmpty(ctx context.Context, orgID, barcode string) error
}

type custodyRepository struct {
	db *sql.DB
}

func NewCustodyRepository(db *sql.DB) CustodyRepository {
	return &custodyRepository{db: db}
}

const bottleColumns = `barcode_number, organization_id, COALESCE(serial_number, ''),
	   COALESCE(product_code, ''), COALESCE(description, ''), COALESCE(category, ''),
	   COALESCE(group_name, ''), COALESCE(type, ''), status,
	   COALESCE(assigned_customer, ''), COALESCE(location, ''), last_location_update`

// GetBottle looks a bottle up by barcode, tolerating zero-padding drift
// between the scanner output and the asset list. Returns nil when no bottle
// matches.
func (r *custodyRepository) GetBottle(ctx context.Context, orgID, barcode string) (*domain.Bottle, error) {
	query := `
		SELECT ` + bottleColumns + `
		FROM bottles
		WHERE organization_id = $1
		  AND (barcode_number = $2 OR ltrim(barcode_number, '0') = $3)
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, orgID, barcode, normalize(barcode))
	bottle, err := scanBottle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("barcode", barcode).Error("Failed to query bottle")
		return nil, err
	}
	return bottle, nil
}

func (r *custodyRepository) ListBottles(ctx context.Context, orgID string) ([]domain.Bottle, error) {
	query := `
		SELECT ` + bottleColumns + `
		FROM bottles
		WHERE organization_id = $1
		ORDER BY barcode_number
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to list bottles")
		return nil, err
	}
	defer rows.Close()

	var bottles []domain.Bottle
	for rows.Next() {
		bottle, err := scanBottle(rows)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan bottle row")
			continue
		}
		bottles = append(bottles, *bottle)
	}
	return bottles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBottle(row rowScanner) (*domain.Bottle, error) {
	var b domain.Bottle
	err := row.Scan(
		&b.Barcode,
		&b.OrganizationID,
		&b.SerialNumber,
		&b.ProductCode,
		&b.Description,
		&b.Category,
		&b.Group,
		&b.Type,
		&b.Status,
		&b.AssignedCustomer,
		&b.Location,
		&b.LastLocationUpdate,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *custodyRepository) GetOpenRental(ctx context.Context, orgID, barcode string) (*domain.Rental, error) {
	query := `
		SELECT id, organization_id, COALESCE(bottle_barcode, ''), customer_id,
			   COALESCE(customer_name, ''), COALESCE(order_number, ''),
			   COALESCE(product_code, ''), rental_start_date,
			   COALESCE(rental_end_date, ''), COALESCE(rental_type, ''),
			   rental_amount, COALESCE(location, ''), COALESCE(tax_code, ''),
			   tax_rate, COALESCE(is_dns, false), created_at
		FROM rentals
		WHERE organization_id = $1
		  AND (bottle_barcode = $2 OR ltrim(bottle_barcode, '0') = $3)
		  AND rental_end_date IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	var rental domain.Rental
	err := r.db.QueryRowContext(ctx, query, orgID, barcode, normalize(barcode)).Scan(
		&rental.ID,
		&rental.OrganizationID,
		&rental.BottleBarcode,
		&rental.CustomerID,
		&rental.CustomerName,
		&rental.OrderNumber,
		&rental.ProductCode,
		&rental.StartDate,
		&rental.EndDate,
		&rental.RentalType,
		&rental.RentalAmount,
		&rental.Location,
		&rental.TaxCode,
		&rental.TaxRate,
		&rental.IsDNS,
		&rental.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("barcode", barcode).Error("Failed to query open rental")
		return nil, err
	}
	return &rental, nil
}

// ShipBottle assigns a bottle to the rental's customer and opens a rental
// period. The open-rental check is re-done inside the transaction: a bottle
// already out under an open rental keeps that rental and only the custody
// fields are refreshed, so double-approving an order cannot double-bill.
func (r *custodyRepository) ShipBottle(ctx context.Context, orgID string, barcode string, rental domain.Rental) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var openRentalID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM rentals
		WHERE organization_id = $1
		  AND (bottle_barcode = $2 OR ltrim(bottle_barcode, '0') = $3)
		  AND rental_end_date IS NULL
		LIMIT 1
		FOR UPDATE
	`, orgID, barcode, normalize(barcode)).Scan(&openRentalID)
	if err != nil && err != sql.ErrNoRows {
		logger.GetLogger().WithError(err).WithField("barcode", barcode).Error("Failed to lock open rental")
		return false, err
	}

	created := false
	if err == sql.ErrNoRows {
		if rental.ID == "" {
			rental.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rentals (
				id, organization_id, bottle_barcode, customer_id, customer_name,
				order_number, product_code, rental_start_date, rental_type,
				rental_amount, location, tax_code, tax_rate, is_dns, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, false, NOW())
		`,
			rental.ID, orgID, barcode, rental.CustomerID, nullable(rental.CustomerName),
			nullable(rental.OrderNumber), nullable(rental.ProductCode), rental.StartDate,
			nullable(rental.RentalType), rental.RentalAmount, nullable(rental.Location),
			nullable(rental.TaxCode), rental.TaxRate,
		)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("barcode", barcode).Error("Failed to insert rental")
			return false, err
		}
		created = true
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bottles
		SET status = 'rented', assigned_customer = $1, location = $2,
			last_location_update = NOW()
		WHERE organization_id = $3
		  AND (barcode_number = $4 OR ltrim(barcode_number, '0') = $5)
	`, rental.CustomerID, nullable(rental.Location), orgID, barcode, normalize(barcode))
	if err != nil {
		logger.GetLogger().WithError(err).WithField("barcode", barcode).Error("Failed to update bottle custody")
		return false, err
	}

	return created, tx.Commit()
}

// ReturnBottle closes the bottle's open rental, clears the customer
// assignment, and marks the bottle empty for refill
func (r *custodyRepository) ReturnBottle(ctx context.Context, orgID, barcode, endDate, location string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE rentals
		SET rental_end_date = $1
		WHERE organization_id = $2
		  AND (bottle_barcode = $3 OR ltrim(bottle_barcode, '0') = $4)
		  AND rental_end_date IS NULL
	`, endDate, orgID, barcode, normalize(barcode))
	if err != nil {
		logger.GetLogger().WithError(err).WithField("barcode", barcode).Error("Failed to close rental")
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bottles
		SET status = 'empty', assigned_customer = NULL, location = $1,
			last_location_update = $2
		WHERE organization_id = $3
		  AND (barcode_number = $4 OR ltrim(barcode_number, '0') = $5)
	`, nullable(location), at, orgID, barcode, normalize(barcode))
	if err != nil {
		logger.GetLogger().WithError(err).WithField("barcode", barcode).Error("Failed to release bottle")
		return err
	}

	return tx.Commit()
}

func (r *custodyRepository) MarkEmpty(ctx context.Context, orgID, barcode string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bottles
		SET status = 'empty', last_location_update = NOW()
		WHERE organization_id = $1
		  AND (barcode_number = $2 OR ltrim(barcode_number, '0') = $3)
	`, orgID, barcode, normalize(barcode))
	if err != nil {
		logger.GetLogger().WithError(err).WithField("barcode", barcode).Error("Failed to mark bottle empty")
	}
	return err
}

// CreateDNSRentals inserts barcode-less rentals for invoiced deliveries that
// were never scanned. All inserts share one transaction; the billing run
// either sees the whole shortfall or none of it.
func (r *custodyRepository) CreateDNSRentals(ctx context.Context, orgID string, rentals []domain.Rental) (int, error) {
	if len(rentals) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	created := 0
	for _, rental := range rentals {
		if rental.ID == "" {
			rental.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rentals (
				id, organization_id, bottle_barcode, customer_id, customer_name,
				order_number, product_code, rental_start_date, rental_type,
				rental_amount, location, tax_code, tax_rate, is_dns, created_at
			) VALUES ($1, $2, NULL, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, NOW())
		`,
			rental.ID, orgID, rental.CustomerID, nullable(rental.CustomerName),
			nullable(rental.OrderNumber), nullable(rental.ProductCode), rental.StartDate,
			nullable(rental.RentalType), rental.RentalAmount, nullable(rental.Location),
			nullable(rental.TaxCode), rental.TaxRate,
		)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("order", rental.OrderNumber).Error("Failed to insert DNS rental")
			return 0, err
		}
		created++
	}

	return created, tx.Commit()
}

func (r *custodyRepository) DeleteDNSRentals(ctx context.Context, orgID, orderNumber string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM rentals
		WHERE organization_id = $1
		  AND is_dns = true
		  AND ltrim(trim(order_number), '0') = $2
	`, orgID, normalize(orderNumber))
	if err != nil {
		logger.GetLogger().WithError(err).WithField("order", orderNumber).Error("Failed to delete DNS rentals")
		return 0, err
	}
	return res.RowsAffected()
}

// RevertEmpty undoes the empty-marking a return scan caused: a bottle still
// assigned to a customer goes back to rented, an unassigned one to available
func (r *custodyRepository) RevertEmpty(ctx context.Context, orgID, barcode string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bottles
		SET status = CASE
				WHEN COALESCE(assigned_customer, '') <> '' THEN 'rented'
				ELSE 'available'
			END,
			last_location_update = NOW()
		WHERE organization_id = $1
		  AND (barcode_number = $2 OR ltrim(barcode_number, '0') = $3)
		  AND status = 'empty'
	`, orgID, barcode, normalize(barcode))
	if err != nil {
		logger.GetLogger().WithError(err).WithField("barcode", barcode).Error("Failed to revert bottle status")
	}
	return err
}
