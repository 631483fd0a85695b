package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cylinder-recon/internal/domain"
	"cylinder-recon/internal/scan"
)

// In-memory repository fakes. They mirror the semantics the SQL
// implementations promise: normalized barcode/order matching, open-rental
// re-checks, idempotent exception creation.

type fakeCustody struct {
	bottles map[string]*domain.Bottle
	rentals []*domain.Rental
}

func newFakeCustody() *fakeCustody {
	return &fakeCustody{bottles: make(map[string]*domain.Bottle)}
}

func (f *fakeCustody) addBottle(b domain.Bottle) {
	bottle := b
	f.bottles[scan.CanonicalBarcode(b.Barcode)] = &bottle
}

func (f *fakeCustody) openRentals() []*domain.Rental {
	var open []*domain.Rental
	for _, r := range f.rentals {
		if r.EndDate == "" {
			open = append(open, r)
		}
	}
	return open
}

func (f *fakeCustody) GetBottle(ctx context.Context, orgID, barcode string) (*domain.Bottle, error) {
	if b, ok := f.bottles[scan.CanonicalBarcode(barcode)]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeCustody) ListBottles(ctx context.Context, orgID string) ([]domain.Bottle, error) {
	var out []domain.Bottle
	for _, b := range f.bottles {
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeCustody) GetOpenRental(ctx context.Context, orgID, barcode string) (*domain.Rental, error) {
	want := scan.CanonicalBarcode(barcode)
	for i := len(f.rentals) - 1; i >= 0; i-- {
		r := f.rentals[i]
		if r.EndDate == "" && scan.CanonicalBarcode(r.BottleBarcode) == want {
			copied := *r
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeCustody) ShipBottle(ctx context.Context, orgID, barcode string, rental domain.Rental) (bool, error) {
	created := false
	if open, _ := f.GetOpenRental(ctx, orgID, barcode); open == nil {
		r := rental
		r.BottleBarcode = barcode
		f.rentals = append(f.rentals, &r)
		created = true
	}
	if b, ok := f.bottles[scan.CanonicalBarcode(barcode)]; ok {
		b.Status = domain.BottleRented
		b.AssignedCustomer = rental.CustomerID
	}
	return created, nil
}

func (f *fakeCustody) ReturnBottle(ctx context.Context, orgID, barcode, endDate, location string, at time.Time) error {
	want := scan.CanonicalBarcode(barcode)
	for _, r := range f.rentals {
		if r.EndDate == "" && scan.CanonicalBarcode(r.BottleBarcode) == want {
			r.EndDate = endDate
		}
	}
	if b, ok := f.bottles[want]; ok {
		b.Status = domain.BottleEmpty
		b.AssignedCustomer = ""
	}
	return nil
}

func (f *fakeCustody) MarkEmpty(ctx context.Context, orgID, barcode string) error {
	if b, ok := f.bottles[scan.CanonicalBarcode(barcode)]; ok {
		b.Status = domain.BottleEmpty
	}
	return nil
}

func (f *fakeCustody) CreateDNSRentals(ctx context.Context, orgID string, rentals []domain.Rental) (int, error) {
	for i := range rentals {
		r := rentals[i]
		r.IsDNS = true
		f.rentals = append(f.rentals, &r)
	}
	return len(rentals), nil
}

func (f *fakeCustody) DeleteDNSRentals(ctx context.Context, orgID, orderNumber string) (int64, error) {
	want := scan.NormalizeOrderNumber(orderNumber)
	var kept []*domain.Rental
	var deleted int64
	for _, r := range f.rentals {
		if r.IsDNS && scan.NormalizeOrderNumber(r.OrderNumber) == want {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.rentals = kept
	return deleted, nil
}

func (f *fakeCustody) RevertEmpty(ctx context.Context, orgID, barcode string) error {
	b, ok := f.bottles[scan.CanonicalBarcode(barcode)]
	if !ok || b.Status != domain.BottleEmpty {
		return nil
	}
	if b.AssignedCustomer != "" {
		b.Status = domain.BottleRented
	} else {
		b.Status = domain.BottleAvailable
	}
	return nil
}

type statusChange struct {
	orders []string
	status domain.ScanStatus
	actor  string
}

type fakeScans struct {
	events        []domain.ScanEvent
	statusChanges []statusChange
	audits        []domain.AuditScan
	deletedOrders []string
}

func (f *fakeScans) ListBySource(ctx context.Context, orgID string, source domain.ScanSource) ([]domain.ScanEvent, error) {
	var out []domain.ScanEvent
	for _, e := range f.events {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeScans) ListByOrders(ctx context.Context, orgID string, source domain.ScanSource, orders []string) ([]domain.ScanEvent, error) {
	return f.ListBySource(ctx, orgID, source)
}

func (f *fakeScans) UpdateStatusByOrders(ctx context.Context, orgID string, orders []string, status domain.ScanStatus, actor string, at time.Time) (int64, error) {
	f.statusChanges = append(f.statusChanges, statusChange{orders: orders, status: status, actor: actor})
	var n int64
	for i := range f.events {
		for _, order := range orders {
			if scan.NormalizeOrderNumber(f.events[i].OrderNumber) == scan.NormalizeOrderNumber(order) {
				f.events[i].Status = status
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeScans) RestoreRejected(ctx context.Context, orgID, orderNumber string) (int64, error) {
	var n int64
	for i := range f.events {
		if f.events[i].Status == domain.ScanRejected &&
			scan.NormalizeOrderNumber(f.events[i].OrderNumber) == scan.NormalizeOrderNumber(orderNumber) {
			f.events[i].Status = domain.ScanPending
			n++
		}
	}
	return n, nil
}

func (f *fakeScans) DeleteWarehouseByOrder(ctx context.Context, orgID, orderNumber string) (int64, error) {
	f.deletedOrders = append(f.deletedOrders, orderNumber)
	var kept []domain.ScanEvent
	var n int64
	for _, e := range f.events {
		if e.Source == domain.SourceWarehouse &&
			scan.NormalizeOrderNumber(e.OrderNumber) == scan.NormalizeOrderNumber(orderNumber) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return n, nil
}

func (f *fakeScans) ReassignOrderNumber(ctx context.Context, orgID, oldOrder, newOrder, customerPattern string) (int64, error) {
	var n int64
	for i := range f.events {
		if scan.NormalizeOrderNumber(f.events[i].OrderNumber) != scan.NormalizeOrderNumber(oldOrder) {
			continue
		}
		if customerPattern != "" && !strings.EqualFold(f.events[i].CustomerName, strings.Trim(customerPattern, "%")) {
			continue
		}
		f.events[i].OrderNumber = newOrder
		n++
	}
	return n, nil
}

func (f *fakeScans) InsertAuditScan(ctx context.Context, audit domain.AuditScan) error {
	f.audits = append(f.audits, audit)
	return nil
}

type fakeImports struct {
	docs []*domain.ImportDocument
}

func (f *fakeImports) Create(ctx context.Context, doc *domain.ImportDocument) error {
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeImports) find(kind domain.ImportKind, id string) *domain.ImportDocument {
	for _, d := range f.docs {
		if d.Kind == kind && d.ID == id {
			return d
		}
	}
	return nil
}

func (f *fakeImports) ListByStatus(ctx context.Context, orgID string, kind domain.ImportKind, status domain.ImportStatus) ([]domain.ImportDocument, error) {
	var out []domain.ImportDocument
	for _, d := range f.docs {
		if d.Kind != kind {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeImports) GetByID(ctx context.Context, orgID string, kind domain.ImportKind, id string) (*domain.ImportDocument, error) {
	if d := f.find(kind, id); d != nil {
		copied := *d
		return &copied, nil
	}
	return nil, fmt.Errorf("import document not found: %s", id)
}

func (f *fakeImports) ListOrderNumbers(ctx context.Context, orgID string) (map[string]bool, error) {
	orders := make(map[string]bool)
	for _, d := range f.docs {
		for _, order := range d.OrderNumbers() {
			orders[scan.NormalizeOrderNumber(order)] = true
		}
	}
	return orders, nil
}

func (f *fakeImports) ListApprovedOrderNumbers(ctx context.Context, orgID string) (map[string]bool, error) {
	orders := make(map[string]bool)
	for _, d := range f.docs {
		for _, order := range d.VerifiedOrderNumbers {
			orders[scan.NormalizeOrderNumber(order)] = true
		}
		if d.Status == domain.ImportApproved || d.Status == domain.ImportVerified {
			for _, order := range d.OrderNumbers() {
				orders[scan.NormalizeOrderNumber(order)] = true
			}
		}
	}
	return orders, nil
}

func (f *fakeImports) UpdateVerification(ctx context.Context, orgID string, kind domain.ImportKind, id string, verified []string, status domain.ImportStatus, approvedAt *time.Time) error {
	d := f.find(kind, id)
	if d == nil {
		return fmt.Errorf("import document not found: %s", id)
	}
	d.VerifiedOrderNumbers = verified
	d.Status = status
	d.ApprovedAt = approvedAt
	return nil
}

func (f *fakeImports) MarkAutoApproved(ctx context.Context, orgID string, kind domain.ImportKind, id, reason string) error {
	d := f.find(kind, id)
	if d == nil {
		return fmt.Errorf("import document not found: %s", id)
	}
	d.AutoApproved = true
	d.AutoApproveReason = reason
	return nil
}

func (f *fakeImports) MarkRejected(ctx context.Context, orgID string, kind domain.ImportKind, id string, at time.Time) error {
	d := f.find(kind, id)
	if d == nil {
		return fmt.Errorf("import document not found: %s", id)
	}
	d.Status = domain.ImportRejected
	d.RejectedAt = &at
	return nil
}

type fakeExceptions struct {
	created []domain.Exception
}

func (f *fakeExceptions) Create(ctx context.Context, exc domain.Exception) error {
	f.created = append(f.created, exc)
	return nil
}

func (f *fakeExceptions) Exists(ctx context.Context, orgID, barcode, orderNumber string, excType domain.ExceptionType) (bool, error) {
	for _, exc := range f.created {
		if exc.AssetBarcode == barcode &&
			scan.NormalizeOrderNumber(exc.OrderNumber) == scan.NormalizeOrderNumber(orderNumber) &&
			exc.ExceptionType == excType {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeExceptions) ListByOrder(ctx context.Context, orgID, orderNumber string) ([]domain.Exception, error) {
	var out []domain.Exception
	for _, exc := range f.created {
		if scan.NormalizeOrderNumber(exc.OrderNumber) == scan.NormalizeOrderNumber(orderNumber) {
			out = append(out, exc)
		}
	}
	return out, nil
}

type fakeCustomers struct {
	byID   map[string]domain.Customer
	byName map[string]domain.Customer
}

func newFakeCustomers(customers ...domain.Customer) *fakeCustomers {
	f := &fakeCustomers{byID: make(map[string]domain.Customer), byName: make(map[string]domain.Customer)}
	for _, c := range customers {
		f.byID[c.ID] = c
		f.byName[strings.ToLower(c.Name)] = c
	}
	return f
}

func (f *fakeCustomers) Resolve(ctx context.Context, orgID, customerID, customerName string) (*domain.Customer, error) {
	if c, ok := f.byID[customerID]; ok {
		return &c, nil
	}
	if c, ok := f.byName[strings.ToLower(strings.TrimSpace(customerName))]; ok {
		return &c, nil
	}
	return nil, nil
}
