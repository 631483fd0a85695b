package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"cylinder-recon/internal/domain"
	"cylinder-recon/pkg/logger"
)

// ScanRepository covers both physical scan tables: the warehouse scanner
// table (bottle_scans) and the mobile-app table (scans)
type ScanRepository interface {
	ListBySource(ctx context.Context, orgID string, source domain.ScanSource) ([]domain.ScanEvent, error)
	ListByOrders(ctx context.Context, orgID string, source domain.ScanSource, orderNumbers []string) ([]domain.ScanEvent, error)
	UpdateStatusByOrders(ctx context.Context, orgID string, orderNumbers []string, status domain.ScanStatus, actor string, at time.Time) (int64, error)
	RestoreRejected(ctx context.Context, orgID string, orderNumber string) (int64, error)
	DeleteWarehouseByOrder(ctx context.Context, orgID string, orderNumber string) (int64, error)
	ReassignOrderNumber(ctx context.Context, orgID string, oldOrder, newOrder, customerPattern string) (int64, error)
	InsertAuditScan(ctx context.Context, audit domain.AuditScan) error
}

type scanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) ScanRepository {
	return &scanRepository{db: db}
}

func tableFor(source domain.ScanSource) string {
	if source == domain.SourceMobile {
		return "scans"
	}
	return "bottle_scans"
}

const scanColumns = `id, organization_id, bottle_barcode, order_number,
	   COALESCE(customer_name, ''), COALESCE(customer_id, ''),
	   COALESCE(product_code, ''), COALESCE(mode, ''), COALESCE(action, ''),
	   COALESCE(scan_type, ''), COALESCE(location, ''), COALESCE(status, ''),
	   COALESCE(user_id, ''), created_at`

func (r *scanRepository) ListBySource(ctx context.Context, orgID string, source domain.ScanSource) ([]domain.ScanEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE organization_id = $1 AND order_number IS NOT NULL
		ORDER BY created_at
	`, scanColumns, tableFor(source))

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("source", source).Error("Failed to query scans")
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows, source)
}

func (r *scanRepository) ListByOrders(ctx context.Context, orgID string, source domain.ScanSource, orderNumbers []string) ([]domain.ScanEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE organization_id = $1 AND order_number = ANY($2)
		ORDER BY created_at
	`, scanColumns, tableFor(source))

	rows, err := r.db.QueryContext(ctx, query, orgID, pq.Array(orderNumbers))
	if err != nil {
		logger.GetLogger().WithError(err).WithField("source", source).Error("Failed to query scans by orders")
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows, source)
}

func scanRows(rows *sql.Rows, source domain.ScanSource) ([]domain.ScanEvent, error) {
	var events []domain.ScanEvent
	for rows.Next() {
		var event domain.ScanEvent
		err := rows.Scan(
			&event.ID,
			&event.OrganizationID,
			&event.Barcode,
			&event.OrderNumber,
			&event.CustomerName,
			&event.CustomerID,
			&event.ProductCode,
			&event.Mode,
			&event.Action,
			&event.ScanType,
			&event.Location,
			&event.Status,
			&event.UserID,
			&event.CreatedAt,
		)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan row")
			continue
		}
		event.Source = source
		events = append(events, event)
	}
	return events, rows.Err()
}

// UpdateStatusByOrders flips the status of matching rows in both tables.
// Matching is done on the normalized order number so zero-padded variants
// are caught too.
func (r *scanRepository) UpdateStatusByOrders(ctx context.Context, orgID string, orderNumbers []string, status domain.ScanStatus, actor string, at time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"bottle_scans", "scans"} {
		query := fmt.Sprintf(`
			UPDATE %s
			SET status = $1, status_changed_by = $2, status_changed_at = $3
			WHERE organization_id = $4
			  AND ltrim(trim(order_number), '0') = ANY($5)
		`, table)

		res, err := r.db.ExecContext(ctx, query, status, actor, at, orgID, pq.Array(normalizeAll(orderNumbers)))
		if err != nil {
			logger.GetLogger().WithError(err).WithField("table", table).Error("Failed to update scan status")
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// RestoreRejected sets rejected scans for an order back to pending. Rows
// deleted from the warehouse table during rejection are not resurrected;
// only the mobile table survives a reject.
func (r *scanRepository) RestoreRejected(ctx context.Context, orgID string, orderNumber string) (int64, error) {
	var total int64
	for _, table := range []string{"bottle_scans", "scans"} {
		query := fmt.Sprintf(`
			UPDATE %s
			SET status = 'pending', status_changed_by = NULL, status_changed_at = NULL
			WHERE organization_id = $1
			  AND status = 'rejected'
			  AND ltrim(trim(order_number), '0') = $2
		`, table)

		res, err := r.db.ExecContext(ctx, query, orgID, normalize(orderNumber))
		if err != nil {
			logger.GetLogger().WithError(err).WithField("table", table).Error("Failed to restore rejected scans")
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (r *scanRepository) DeleteWarehouseByOrder(ctx context.Context, orgID string, orderNumber string) (int64, error) {
	query := `
		DELETE FROM bottle_scans
		WHERE organization_id = $1
		  AND ltrim(trim(order_number), '0') = $2
	`

	res, err := r.db.ExecContext(ctx, query, orgID, normalize(orderNumber))
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to delete warehouse scans")
		return 0, err
	}
	return res.RowsAffected()
}

// ReassignOrderNumber re-keys scans from one order number to another in both
// tables, optionally scoped to a customer-name pattern
func (r *scanRepository) ReassignOrderNumber(ctx context.Context, orgID string, oldOrder, newOrder, customerPattern string) (int64, error) {
	var total int64
	for _, table := range []string{"bottle_scans", "scans"} {
		query := fmt.Sprintf(`
			UPDATE %s
			SET order_number = $1
			WHERE organization_id = $2
			  AND ltrim(trim(order_number), '0') = $3
			  AND ($4 = '' OR customer_name ILIKE $4)
		`, table)

		res, err := r.db.ExecContext(ctx, query, newOrder, orgID, normalize(oldOrder), customerPattern)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("table", table).Error("Failed to reassign order number")
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// InsertAuditScan writes a movement-history row into the warehouse table so
// approvals stay visible in asset movement views
func (r *scanRepository) InsertAuditScan(ctx context.Context, audit domain.AuditScan) error {
	query := `
		INSERT INTO bottle_scans (
			id, organization_id, bottle_barcode, mode, customer_id,
			customer_name, order_number, location, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'approved', $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID,
		audit.OrganizationID,
		audit.Barcode,
		string(audit.Direction),
		nullable(audit.CustomerID),
		nullable(audit.CustomerName),
		audit.OrderNumber,
		nullable(audit.Location),
		audit.Timestamp,
	)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("barcode", audit.Barcode).Error("Failed to insert audit scan")
		return err
	}
	return nil
}
