package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"cylinder-recon/internal/domain"
	"cylinder-recon/pkg/logger"
)

// ImportRepository persists imported invoice/receipt documents. The two
// import kinds live in two physical tables with identical shapes.
type ImportRepository interface {
	Create(ctx context.Context, doc *domain.ImportDocument) error
	ListByStatus(ctx context.Context, orgID string, kind domain.ImportKind, status domain.ImportStatus) ([]domain.ImportDocument, error)
	GetByID(ctx context.Context, orgID string, kind domain.ImportKind, id string) (*domain.ImportDocument, error)
	ListOrderNumbers(ctx context.Context, orgID string) (map[string]bool, error)
	ListApprovedOrderNumbers(ctx context.Context, orgID string) (map[string]bool, error)
	UpdateVerification(ctx context.Context, orgID string, kind domain.ImportKind, id string, verifiedOrders []string, status domain.ImportStatus, approvedAt *time.Time) error
	MarkAutoApproved(ctx context.Context, orgID string, kind domain.ImportKind, id string, reason string) error
	MarkRejected(ctx context.Context, orgID string, kind domain.ImportKind, id string, at time.Time) error
}

type importRepository struct {
	db *sql.DB
}

func NewImportRepository(db *sql.DB) ImportRepository {
	return &importRepository{db: db}
}

func importTableFor(kind domain.ImportKind) string {
	if kind == domain.KindReceipt {
		return "imported_sales_receipts"
	}
	return "imported_invoices"
}

// Create persists a freshly-uploaded document; rows and parse warnings go
// into the JSONB data payload
func (r *importRepository) Create(ctx context.Context, doc *domain.ImportDocument) error {
	payload := struct {
		Rows     []domain.ImportRow `json:"rows"`
		Warnings []string           `json:"warnings,omitempty"`
	}{Rows: doc.Rows, Warnings: doc.Warnings}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal import rows: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, organization_id, status, customer_name, customer_id, location,
			data, verified_order_numbers, uploaded_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, '{}', $8, NOW(), NOW())
	`, importTableFor(doc.Kind))

	_, err = r.db.ExecContext(ctx, query,
		doc.ID, doc.OrganizationID, string(doc.Status),
		nullable(doc.CustomerName), nullable(doc.CustomerID), nullable(doc.Location),
		data, nullable(doc.UploadedBy),
	)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("id", doc.ID).Error("Failed to insert import document")
		return err
	}
	return nil
}

const importColumns = `id, organization_id, status,
	   COALESCE(customer_name, ''), COALESCE(customer_id, ''),
	   COALESCE(location, ''), data, verified_order_numbers,
	   COALESCE(processing, false), COALESCE(investigation_reason, ''),
	   COALESCE(notes, ''), COALESCE(uploaded_by, ''),
	   COALESCE(auto_approved, false), COALESCE(auto_approve_reason, ''),
	   approved_at, rejected_at, created_at, updated_at`

func (r *importRepository) ListByStatus(ctx context.Context, orgID string, kind domain.ImportKind, status domain.ImportStatus) ([]domain.ImportDocument, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE organization_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`, importColumns, importTableFor(kind))

	rows, err := r.db.QueryContext(ctx, query, orgID, string(status))
	if err != nil {
		logger.GetLogger().WithError(err).WithField("kind", kind).Error("Failed to query import documents")
		return nil, err
	}
	defer rows.Close()

	var docs []domain.ImportDocument
	for rows.Next() {
		doc, err := scanImportRow(rows, kind)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to scan import document")
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *importRepository) GetByID(ctx context.Context, orgID string, kind domain.ImportKind, id string) (*domain.ImportDocument, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE organization_id = $1 AND id = $2
	`, importColumns, importTableFor(kind))

	rows, err := r.db.QueryContext(ctx, query, orgID, id)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to query import document")
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("import document not found: %s", id)
	}
	return scanImportRow(rows, kind)
}

func scanImportRow(rows *sql.Rows, kind domain.ImportKind) (*domain.ImportDocument, error) {
	var doc domain.ImportDocument
	var data []byte
	err := rows.Scan(
		&doc.ID,
		&doc.OrganizationID,
		&doc.Status,
		&doc.CustomerName,
		&doc.CustomerID,
		&doc.Location,
		&data,
		pq.Array(&doc.VerifiedOrderNumbers),
		&doc.Processing,
		&doc.InvestigationReason,
		&doc.Notes,
		&doc.UploadedBy,
		&doc.AutoApproved,
		&doc.AutoApproveReason,
		&doc.ApprovedAt,
		&doc.RejectedAt,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Kind = kind

	// A malformed data payload becomes a parse-error marker, not a dropped
	// document: the classifier surfaces it as an exception for the operator
	if len(data) > 0 {
		var payload struct {
			Rows     []domain.ImportRow `json:"rows"`
			Warnings []string           `json:"warnings"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			doc.ParseError = err.Error()
		} else {
			doc.Rows = payload.Rows
			doc.Warnings = payload.Warnings
		}
	}
	return &doc, nil
}

// ListOrderNumbers returns the normalized order numbers present in any
// import document of the organization, regardless of status
func (r *importRepository) ListOrderNumbers(ctx context.Context, orgID string) (map[string]bool, error) {
	return r.collectOrderNumbers(ctx, orgID, "")
}

// ListApprovedOrderNumbers returns the normalized order numbers verified
// anywhere in the organization, either through a document's
// verified_order_numbers set or a fully approved/verified document
func (r *importRepository) ListApprovedOrderNumbers(ctx context.Context, orgID string) (map[string]bool, error) {
	orders := make(map[string]bool)
	for _, kind := range []domain.ImportKind{domain.KindInvoice, domain.KindReceipt} {
		query := fmt.Sprintf(`
			SELECT data, verified_order_numbers, status
			FROM %s
			WHERE organization_id = $1
		`, importTableFor(kind))

		rows, err := r.db.QueryContext(ctx, query, orgID)
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to query approved order numbers")
			return nil, err
		}

		for rows.Next() {
			var data []byte
			var verified []string
			var status string
			if err := rows.Scan(&data, pq.Array(&verified), &status); err != nil {
				logger.GetLogger().WithError(err).Error("Failed to scan approved order row")
				continue
			}
			for _, order := range verified {
				orders[normalize(order)] = true
			}
			if status == string(domain.ImportApproved) || status == string(domain.ImportVerified) {
				for _, order := range ordersInPayload(data) {
					orders[normalize(order)] = true
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return orders, nil
}

func (r *importRepository) collectOrderNumbers(ctx context.Context, orgID string, status domain.ImportStatus) (map[string]bool, error) {
	orders := make(map[string]bool)
	for _, kind := range []domain.ImportKind{domain.KindInvoice, domain.KindReceipt} {
		query := fmt.Sprintf(`
			SELECT data
			FROM %s
			WHERE organization_id = $1 AND ($2 = '' OR status = $2)
		`, importTableFor(kind))

		rows, err := r.db.QueryContext(ctx, query, orgID, string(status))
		if err != nil {
			logger.GetLogger().WithError(err).Error("Failed to query import order numbers")
			return nil, err
		}

		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				continue
			}
			for _, order := range ordersInPayload(data) {
				orders[normalize(order)] = true
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return orders, nil
}

func ordersInPayload(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var payload struct {
		Rows []domain.ImportRow `json:"rows"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var orders []string
	for _, row := range payload.Rows {
		if row.OrderNumber != "" && !seen[row.OrderNumber] {
			seen[row.OrderNumber] = true
			orders = append(orders, row.OrderNumber)
		}
	}
	return orders
}

func (r *importRepository) UpdateVerification(ctx context.Context, orgID string, kind domain.ImportKind, id string, verifiedOrders []string, status domain.ImportStatus, approvedAt *time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET verified_order_numbers = $1, status = $2, approved_at = $3, updated_at = NOW()
		WHERE organization_id = $4 AND id = $5
	`, importTableFor(kind))

	res, err := r.db.ExecContext(ctx, query, pq.Array(verifiedOrders), status, approvedAt, orgID, id)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("id", id).Error("Failed to update import verification")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("import document not found: %s", id)
	}
	return nil
}

func (r *importRepository) MarkAutoApproved(ctx context.Context, orgID string, kind domain.ImportKind, id string, reason string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET auto_approved = true, auto_approve_reason = $1, updated_at = NOW()
		WHERE organization_id = $2 AND id = $3
	`, importTableFor(kind))

	_, err := r.db.ExecContext(ctx, query, reason, orgID, id)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("id", id).Error("Failed to mark auto-approved")
		return err
	}
	return nil
}

func (r *importRepository) MarkRejected(ctx context.Context, orgID string, kind domain.ImportKind, id string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'rejected', rejected_at = $1, updated_at = NOW()
		WHERE organization_id = $2 AND id = $3
	`, importTableFor(kind))

	res, err := r.db.ExecContext(ctx, query, at, orgID, id)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("id", id).Error("Failed to mark import rejected")
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("import document not found: %s", id)
	}
	return nil
}
