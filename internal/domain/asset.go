package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BottleStatus is the custody state of a physical cylinder
type BottleStatus string

const (
	BottleAvailable BottleStatus = "available"
	BottleRented    BottleStatus = "rented"
	BottleDelivered BottleStatus = "delivered"
	BottleEmpty     BottleStatus = "empty"
)

// Bottle is a physical rented gas cylinder asset tracked by barcode
type Bottle struct {
	Barcode            string       `json:"barcode_number" db:"barcode_number"`
	OrganizationID     string       `json:"organization_id" db:"organization_id"`
	SerialNumber       string       `json:"serial_number,omitempty" db:"serial_number"`
	ProductCode        string       `json:"product_code,omitempty" db:"product_code"`
	Description        string       `json:"description,omitempty" db:"description"`
	Category           string       `json:"category,omitempty" db:"category"`
	Group              string       `json:"group_name,omitempty" db:"group_name"`
	Type               string       `json:"type,omitempty" db:"type"`
	Status             BottleStatus `json:"status" db:"status"`
	AssignedCustomer   string       `json:"assigned_customer,omitempty" db:"assigned_customer"`
	Location           string       `json:"location,omitempty" db:"location"`
	LastLocationUpdate *time.Time   `json:"last_location_update,omitempty" db:"last_location_update"`
}

// AtCustomer reports whether the bottle is currently recorded as being with
// a customer
func (b *Bottle) AtCustomer() bool {
	return b.AssignedCustomer != "" && b.Status != BottleEmpty
}

// Rental is one custody period of one bottle by one customer. DNS rentals
// carry no barcode: they bill an invoiced delivery that was never scanned.
type Rental struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	BottleBarcode  string          `json:"bottle_barcode,omitempty" db:"bottle_barcode"`
	CustomerID     string          `json:"customer_id" db:"customer_id"`
	CustomerName   string          `json:"customer_name,omitempty" db:"customer_name"`
	OrderNumber    string          `json:"order_number,omitempty" db:"order_number"`
	ProductCode    string          `json:"product_code,omitempty" db:"product_code"`
	StartDate      string          `json:"rental_start_date" db:"rental_start_date"`
	EndDate        string          `json:"rental_end_date,omitempty" db:"rental_end_date"`
	RentalType     string          `json:"rental_type" db:"rental_type"`
	RentalAmount   decimal.Decimal `json:"rental_amount" db:"rental_amount"`
	Location       string          `json:"location,omitempty" db:"location"`
	TaxCode        string          `json:"tax_code,omitempty" db:"tax_code"`
	TaxRate        decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	IsDNS          bool            `json:"is_dns" db:"is_dns"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// ExceptionType classifies anomaly records
type ExceptionType string

const (
	// ExceptionNotOnBalance records a return scan for a bottle that was not
	// on the returning customer's balance
	ExceptionNotOnBalance ExceptionType = "Returned Asset Was Not on Balance"
)

// Exception is a persisted anomaly observed during approval processing
type Exception struct {
	ID               string        `json:"id" db:"id"`
	OrganizationID   string        `json:"organization_id" db:"organization_id"`
	AssetBarcode     string        `json:"asset_barcode" db:"asset_barcode"`
	CustomerID       string        `json:"customer_id,omitempty" db:"customer_id"`
	OrderNumber      string        `json:"order_number,omitempty" db:"order_number"`
	ExceptionType    ExceptionType `json:"exception_type" db:"exception_type"`
	ResolutionStatus string        `json:"resolution_status" db:"resolution_status"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}

// Customer is the stable customer-list identity used for custody assignment
type Customer struct {
	ID             string `json:"customer_list_id" db:"customer_list_id"`
	Name           string `json:"name" db:"name"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
}
