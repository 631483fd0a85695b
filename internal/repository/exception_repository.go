package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"cylinder-recon/internal/domain"
	"cylinder-recon/pkg/logger"
)

// ExceptionRepository persists approval-time anomaly records
type ExceptionRepository interface {
	Create(ctx context.Context, exc domain.Exception) error
	Exists(ctx context.Context, orgID, barcode, orderNumber string, excType domain.ExceptionType) (bool, error)
	ListByOrder(ctx context.Context, orgID, orderNumber string) ([]domain.Exception, error)
}

type exceptionRepository struct {
	db *sql.DB
}

func NewExceptionRepository(db *sql.DB) ExceptionRepository {
	return &exceptionRepository{db: db}
}

func (r *exceptionRepository) Create(ctx context.Context, exc domain.Exception) error {
	if exc.ID == "" {
		exc.ID = uuid.New().String()
	}
	if exc.ResolutionStatus == "" {
		exc.ResolutionStatus = "RESOLVED"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exceptions (
			id, organization_id, asset_barcode, customer_id, order_number,
			exception_type, resolution_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`,
		exc.ID, exc.OrganizationID, exc.AssetBarcode, nullable(exc.CustomerID),
		nullable(exc.OrderNumber), string(exc.ExceptionType), exc.ResolutionStatus,
	)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("barcode", exc.AssetBarcode).Error("Failed to create exception")
		return err
	}
	return nil
}

// Exists guards against duplicate exceptions when an order is approved twice
func (r *exceptionRepository) Exists(ctx context.Context, orgID, barcode, orderNumber string, excType domain.ExceptionType) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM exceptions
		WHERE organization_id = $1
		  AND asset_barcode = $2
		  AND ltrim(trim(COALESCE(order_number, '')), '0') = $3
		  AND exception_type = $4
	`, orgID, barcode, normalize(orderNumber), string(excType)).Scan(&count)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to check exception existence")
		return false, err
	}
	return count > 0, nil
}

func (r *exceptionRepository) ListByOrder(ctx context.Context, orgID, orderNumber string) ([]domain.Exception, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, asset_barcode, COALESCE(customer_id, ''),
			   COALESCE(order_number, ''), exception_type, resolution_status, created_at
		FROM exceptions
		WHERE organization_id = $1
		  AND ltrim(trim(COALESCE(order_number, '')), '0') = $2
		ORDER BY created_at
	`, orgID, normalize(orderNumber))
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to list exceptions")
		return nil, err
	}
	defer rows.Close()

	var exceptions []domain.Exception
	for rows.Next() {
		var exc domain.Exception
		if err := rows.Scan(
			&exc.ID, &exc.OrganizationID, &exc.AssetBarcode, &exc.CustomerID,
			&exc.OrderNumber, &exc.ExceptionType, &exc.ResolutionStatus, &exc.CreatedAt,
		); err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan exception row")
			continue
		}
		exceptions = append(exceptions, exc)
	}
	return exceptions, rows.Err()
}
