package domain

import "time"

// ImportKind distinguishes the two imported document types
type ImportKind string

const (
	KindInvoice ImportKind = "invoice"
	KindReceipt ImportKind = "receipt"
)

// ImportStatus is the persisted lifecycle status of an imported document
type ImportStatus string

const (
	ImportPending       ImportStatus = "pending"
	ImportApproved      ImportStatus = "approved"
	ImportVerified      ImportStatus = "verified"
	ImportRejected      ImportStatus = "rejected"
	ImportInvestigation ImportStatus = "investigation"
)

// ImportRow is one line item inside an imported invoice/receipt document
type ImportRow struct {
	OrderNumber  string `json:"order_number"`
	CustomerName string `json:"customer_name,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`
	ProductCode  string `json:"product_code"`
	Description  string `json:"description,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	QtyShipped   int    `json:"qty_out"`
	QtyReturned  int    `json:"qty_in"`
	Date         string `json:"date,omitempty"`
	Location     string `json:"location,omitempty"`
}

// ImportDocument is one raw persisted import; its rows may span several
// distinct orders and customers
type ImportDocument struct {
	ID                   string       `json:"id" db:"id"`
	OrganizationID       string       `json:"organization_id" db:"organization_id"`
	Kind                 ImportKind   `json:"kind" db:"kind"`
	Status               ImportStatus `json:"status" db:"status"`
	CustomerName         string       `json:"customer_name,omitempty" db:"customer_name"`
	CustomerID           string       `json:"customer_id,omitempty" db:"customer_id"`
	Location             string       `json:"location,omitempty" db:"location"`
	Rows                 []ImportRow  `json:"rows" db:"-"`
	VerifiedOrderNumbers []string     `json:"verified_order_numbers" db:"verified_order_numbers"`
	Warnings             []string     `json:"warnings,omitempty" db:"-"`
	ParseError           string       `json:"parse_error,omitempty" db:"parse_error"`
	Processing           bool         `json:"processing" db:"processing"`
	InvestigationReason  string       `json:"investigation_reason,omitempty" db:"investigation_reason"`
	Notes                string       `json:"notes,omitempty" db:"notes"`
	UploadedBy           string       `json:"uploaded_by,omitempty" db:"uploaded_by"`
	AutoApproved         bool         `json:"auto_approved" db:"auto_approved"`
	AutoApproveReason    string       `json:"auto_approve_reason,omitempty" db:"auto_approve_reason"`
	ApprovedAt           *time.Time   `json:"approved_at,omitempty" db:"approved_at"`
	RejectedAt           *time.Time   `json:"rejected_at,omitempty" db:"rejected_at"`
	CreatedAt            time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at" db:"updated_at"`
}

// OrderNumbers returns the distinct raw order numbers among the document rows
func (d *ImportDocument) OrderNumbers() []string {
	seen := make(map[string]bool)
	var orders []string
	for _, row := range d.Rows {
		if row.OrderNumber == "" {
			continue
		}
		if !seen[row.OrderNumber] {
			seen[row.OrderNumber] = true
			orders = append(orders, row.OrderNumber)
		}
	}
	return orders
}
