package domain

import "time"

// ScanDirection represents the physical movement of a bottle
type ScanDirection string

const (
	DirectionShip   ScanDirection = "SHIP"
	DirectionReturn ScanDirection = "RETURN"
)

// ScanSource identifies which physical table a scan row came from
type ScanSource string

const (
	// SourceWarehouse is the warehouse scanner table (bottle_scans)
	SourceWarehouse ScanSource = "bottle_scans"
	// SourceMobile is the mobile-app scan table (scans)
	SourceMobile ScanSource = "scans"
)

// ScanStatus is the persisted lifecycle status of a scan row
type ScanStatus string

const (
	ScanPending  ScanStatus = "pending"
	ScanApproved ScanStatus = "approved"
	ScanRejected ScanStatus = "rejected"
)

// ScanEvent is one physical scan of one bottle
type ScanEvent struct {
	ID             string        `json:"id" db:"id"`
	OrganizationID string        `json:"organization_id" db:"organization_id"`
	Barcode        string        `json:"bottle_barcode" db:"bottle_barcode"`
	OrderNumber    string        `json:"order_number" db:"order_number"`
	CustomerName   string        `json:"customer_name,omitempty" db:"customer_name"`
	CustomerID     string        `json:"customer_id,omitempty" db:"customer_id"`
	ProductCode    string        `json:"product_code,omitempty" db:"product_code"`
	Mode           string        `json:"mode,omitempty" db:"mode"`
	Action         string        `json:"action,omitempty" db:"action"`
	ScanType       string        `json:"scan_type,omitempty" db:"scan_type"`
	Direction      ScanDirection `json:"direction" db:"direction"`
	Location       string        `json:"location,omitempty" db:"location"`
	Status         ScanStatus    `json:"status,omitempty" db:"status"`
	Source         ScanSource    `json:"source" db:"-"`
	UserID         string        `json:"user_id,omitempty" db:"user_id"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// AuditScan is an insert-only movement-history row written on approval
type AuditScan struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Barcode        string        `json:"bottle_barcode"`
	Direction      ScanDirection `json:"direction"`
	CustomerID     string        `json:"customer_id"`
	CustomerName   string        `json:"customer_name"`
	OrderNumber    string        `json:"order_number"`
	Location       string        `json:"location,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
