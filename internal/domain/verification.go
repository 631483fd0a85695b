package domain

// VerificationStatus is the computed state of a verification record
type VerificationStatus string

const (
	StatusPending       VerificationStatus = "PENDING"
	StatusInProgress    VerificationStatus = "IN_PROGRESS"
	StatusVerified      VerificationStatus = "VERIFIED"
	StatusException     VerificationStatus = "EXCEPTION"
	StatusInvestigation VerificationStatus = "INVESTIGATION"
	StatusScannedOnly   VerificationStatus = "SCANNED_ONLY"
	StatusRejected      VerificationStatus = "REJECTED"
)

// HighlightFlag marks a line item needing operator attention
type HighlightFlag string

const (
	HighlightNone                HighlightFlag = ""
	HighlightBothDirections      HighlightFlag = "both shipped and returned"
	HighlightMissingProductInfo  HighlightFlag = "missing product info"
	HighlightDeliveredNotScanned HighlightFlag = "delivered not scanned"
)

// LineItem is one product line of a verification record with invoiced and
// scanned quantities side by side
type LineItem struct {
	ProductCode     string        `json:"product_code"`
	Description     string        `json:"description,omitempty"`
	Category        string        `json:"category,omitempty"`
	Group           string        `json:"group,omitempty"`
	Type            string        `json:"type,omitempty"`
	Shipped         int           `json:"shipped"`
	Returned        int           `json:"returned"`
	ScannedShipped  int           `json:"scanned_shipped"`
	ScannedReturned int           `json:"scanned_returned"`
	Highlight       HighlightFlag `json:"highlight,omitempty"`
}

// VerificationRecord is the unit a human verifies: one (order, customer)
// group built by splitting an import document or synthesized from scans.
// It is recomputed on every fetch and never persisted; identity is
// structural (order + customer), not a stored key.
type VerificationRecord struct {
	ID            string             `json:"id"`
	DocumentID    string             `json:"document_id,omitempty"`
	Kind          ImportKind         `json:"kind,omitempty"`
	OrderNumber   string             `json:"order_number"`
	CustomerName  string             `json:"customer_name,omitempty"`
	CustomerID    string             `json:"customer_id,omitempty"`
	Date          string             `json:"date,omitempty"`
	Location      string             `json:"location,omitempty"`
	LineItems     []LineItem         `json:"line_items"`
	Scans         []ScanEvent        `json:"-"`
	IsScannedOnly bool               `json:"is_scanned_only"`
	Warnings      []string           `json:"warnings,omitempty"`
	Status        VerificationStatus `json:"status"`
}

// VerificationStats are per-status counters over one fetch of records
type VerificationStats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Verified      int `json:"verified"`
	Exceptions    int `json:"exceptions"`
	Investigating int `json:"investigating"`
	Processing    int `json:"processing"`
	ScannedOnly   int `json:"scanned_only"`
	Rejected      int `json:"rejected"`
}
