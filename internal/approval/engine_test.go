package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cylinder-recon/internal/domain"
)

const testOrg = "org1"

type fixture struct {
	custody    *fakeCustody
	scans      *fakeScans
	imports    *fakeImports
	exceptions *fakeExceptions
	customers  *fakeCustomers
	engine     *Engine
}

func newFixture() *fixture {
	f := &fixture{
		custody:    newFakeCustody(),
		scans:      &fakeScans{},
		imports:    &fakeImports{},
		exceptions: &fakeExceptions{},
		customers: newFakeCustomers(
			domain.Customer{ID: "cust-acme", Name: "Acme", OrganizationID: testOrg},
			domain.Customer{ID: "cust-beta", Name: "Beta", OrganizationID: testOrg},
		),
	}
	f.engine = NewEngine(f.custody, f.scans, f.imports, f.exceptions, f.customers, nil)
	f.engine.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func shipEvent(order, barcode string) domain.ScanEvent {
	return domain.ScanEvent{OrderNumber: order, Barcode: barcode, Direction: domain.DirectionShip}
}

func returnEvent(order, barcode string) domain.ScanEvent {
	return domain.ScanEvent{OrderNumber: order, Barcode: barcode, Direction: domain.DirectionReturn}
}

func invoiceDoc(id string, orders ...string) *domain.ImportDocument {
	doc := &domain.ImportDocument{ID: id, Kind: domain.KindInvoice, Status: domain.ImportPending}
	for _, order := range orders {
		doc.Rows = append(doc.Rows, domain.ImportRow{OrderNumber: order, ProductCode: "P1", QtyShipped: 1})
	}
	return doc
}

func TestApprove_ShipAssignsUnassignedBottle(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B1", Status: domain.BottleAvailable, ProductCode: "P1"})
	doc := invoiceDoc("doc1", "100")
	f.imports.docs = append(f.imports.docs, doc)

	record := domain.VerificationRecord{
		ID: "doc1_0", DocumentID: "doc1", Kind: domain.KindInvoice,
		OrderNumber: "100", CustomerName: "Acme",
		LineItems: []domain.LineItem{{ProductCode: "P1", Shipped: 1, ScannedShipped: 1}},
		Scans:     []domain.ScanEvent{shipEvent("100", "B1")},
	}

	result, err := f.engine.Approve(context.Background(), testOrg, record, doc, "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Shipped)
	assert.Empty(t, result.Warnings)

	bottle, _ := f.custody.GetBottle(context.Background(), testOrg, "B1")
	assert.Equal(t, domain.BottleRented, bottle.Status)
	assert.Equal(t, "cust-acme", bottle.AssignedCustomer)

	open := f.custody.openRentals()
	require.Len(t, open, 1)
	assert.Equal(t, "cust-acme", open[0].CustomerID)
	assert.False(t, open[0].IsDNS)

	// Audit scan written for movement history
	require.Len(t, f.scans.audits, 1)
	assert.Equal(t, domain.DirectionShip, f.scans.audits[0].Direction)

	// Single-order document is fully verified
	assert.Equal(t, domain.ImportApproved, doc.Status)
	assert.NotNil(t, doc.ApprovedAt)
	assert.Equal(t, []string{"100"}, doc.VerifiedOrderNumbers)
}

// A barcode scanned both ways in one order is processed as RETURN only
func TestApprove_ReturnPrecedence(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B1", Status: domain.BottleRented, AssignedCustomer: "cust-acme", ProductCode: "P1"})
	f.custody.rentals = append(f.custody.rentals, &domain.Rental{ID: "r1", BottleBarcode: "B1", CustomerID: "cust-acme"})

	record := domain.VerificationRecord{
		ID: "doc1_0", OrderNumber: "100", CustomerName: "Acme",
		Scans: []domain.ScanEvent{shipEvent("100", "B1"), returnEvent("100", "B1")},
	}

	result, err := f.engine.Approve(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Returned)
	assert.Equal(t, 0, result.Shipped)

	bottle, _ := f.custody.GetBottle(context.Background(), testOrg, "B1")
	assert.Equal(t, domain.BottleEmpty, bottle.Status)
	assert.Empty(t, f.custody.openRentals())
}

// A returned bottle goes to empty for refill, never straight back to available
func TestApprove_OnBalanceReturnEmptiesBottle(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B4", Status: domain.BottleRented, AssignedCustomer: "cust-acme", ProductCode: "P1"})
	f.custody.rentals = append(f.custody.rentals, &domain.Rental{ID: "r1", BottleBarcode: "B4", CustomerID: "cust-acme"})

	record := domain.VerificationRecord{
		ID: "doc1_0", OrderNumber: "100", CustomerName: "Acme",
		Scans: []domain.ScanEvent{returnEvent("100", "B4")},
	}

	result, err := f.engine.Approve(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Returned)
	assert.Empty(t, f.exceptions.created)

	bottle, _ := f.custody.GetBottle(context.Background(), testOrg, "B4")
	assert.Equal(t, domain.BottleEmpty, bottle.Status)
	assert.Empty(t, bottle.AssignedCustomer)
	assert.Empty(t, f.custody.openRentals())
}

func TestApprove_BalanceException(t *testing.T) {
	f := newFixture()
	// Bottle exists but has no open rental and no assigned customer
	f.custody.addBottle(domain.Bottle{Barcode: "B1", Status: domain.BottleAvailable, ProductCode: "P1"})

	record := domain.VerificationRecord{
		ID: "doc1_0", OrderNumber: "100", CustomerName: "Acme",
		Scans: []domain.ScanEvent{returnEvent("100", "B1")},
	}

	result, err := f.engine.Approve(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, result.ExceptionsCreated)
	assert.Equal(t, 0, result.Returned)

	require.Len(t, f.exceptions.created, 1)
	exc := f.exceptions.created[0]
	assert.Equal(t, domain.ExceptionNotOnBalance, exc.ExceptionType)
	assert.Equal(t, "RESOLVED", exc.ResolutionStatus)

	// Status flips to empty but no rental is touched
	bottle, _ := f.custody.GetBottle(context.Background(), testOrg, "B1")
	assert.Equal(t, domain.BottleEmpty, bottle.Status)
	assert.Empty(t, f.custody.rentals)
}

func TestApprove_Idempotent(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B1", Status: domain.BottleAvailable, ProductCode: "P1"})
	doc := invoiceDoc("doc1", "100")
	f.imports.docs = append(f.imports.docs, doc)

	record := domain.VerificationRecord{
		ID: "doc1_0", DocumentID: "doc1", Kind: domain.KindInvoice,
		OrderNumber: "100", CustomerName: "Acme",
		LineItems: []domain.LineItem{{ProductCode: "P1", Shipped: 1, ScannedShipped: 1}},
		Scans:     []domain.ScanEvent{shipEvent("100", "B1")},
	}

	_, err := f.engine.Approve(context.Background(), testOrg, record, doc, "tester")
	require.NoError(t, err)
	rentalsAfterFirst := len(f.custody.rentals)

	second, err := f.engine.Approve(context.Background(), testOrg, record, doc, "tester")
	require.NoError(t, err)

	assert.True(t, second.AlreadyApproved)
	assert.Len(t, f.custody.rentals, rentalsAfterFirst)
	assert.Empty(t, f.exceptions.created)
}

func TestApprove_DNSQuantityMath(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B1", Status: domain.BottleAvailable, ProductCode: "P1"})
	f.custody.addBottle(domain.Bottle{Barcode: "B2", Status: domain.BottleAvailable, ProductCode: "P1"})
	f.custody.addBottle(domain.Bottle{Barcode: "B3", Status: domain.BottleAvailable, ProductCode: "P1"})

	record := domain.VerificationRecord{
		ID: "doc1_0", OrderNumber: "100", CustomerName: "Acme",
		LineItems: []domain.LineItem{{ProductCode: "P1", Shipped: 5, ScannedShipped: 3}},
		Scans: []domain.ScanEvent{
			shipEvent("100", "B1"), shipEvent("100", "B2"), shipEvent("100", "B3"),
		},
	}

	result, err := f.engine.Approve(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	assert.Equal(t, 2, result.DNSCreated)

	var dns int
	for _, r := range f.custody.rentals {
		if r.IsDNS {
			dns++
			assert.Empty(t, r.BottleBarcode)
			assert.Equal(t, "P1", r.ProductCode)
			assert.Equal(t, "cust-acme", r.CustomerID)
		}
	}
	assert.Equal(t, 2, dns)
}

func TestApprove_PartialVerification(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B1", Status: domain.BottleAvailable, ProductCode: "P1"})
	doc := invoiceDoc("doc1", "100", "200")
	f.imports.docs = append(f.imports.docs, doc)

	record := domain.VerificationRecord{
		ID: "doc1_0", DocumentID: "doc1", Kind: domain.KindInvoice,
		OrderNumber: "100", CustomerName: "Acme",
		LineItems: []domain.LineItem{{ProductCode: "P1", Shipped: 1, ScannedShipped: 1}},
		Scans:     []domain.ScanEvent{shipEvent("100", "B1")},
	}

	_, err := f.engine.Approve(context.Background(), testOrg, record, doc, "tester")
	require.NoError(t, err)

	assert.Equal(t, []string{"100"}, doc.VerifiedOrderNumbers)
	// Order 200 is still unverified, the document must not flip
	assert.Equal(t, domain.ImportPending, doc.Status)
	assert.Nil(t, doc.ApprovedAt)
}

func TestApprove_SiblingDocumentsVerified(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B1", Status: domain.BottleAvailable, ProductCode: "P1"})
	primary := invoiceDoc("doc1", "100")
	// Duplicate re-import of the same order, plus an unrelated document
	sibling := invoiceDoc("doc2", "00100")
	unrelated := invoiceDoc("doc3", "300")
	f.imports.docs = append(f.imports.docs, primary, sibling, unrelated)

	record := domain.VerificationRecord{
		ID: "doc1_0", DocumentID: "doc1", Kind: domain.KindInvoice,
		OrderNumber: "100", CustomerName: "Acme",
		LineItems: []domain.LineItem{{ProductCode: "P1", Shipped: 1, ScannedShipped: 1}},
		Scans:     []domain.ScanEvent{shipEvent("100", "B1")},
	}

	_, err := f.engine.Approve(context.Background(), testOrg, record, primary, "tester")
	require.NoError(t, err)

	assert.Equal(t, domain.ImportApproved, primary.Status)
	assert.Equal(t, domain.ImportApproved, sibling.Status)
	assert.Equal(t, []string{"100"}, sibling.VerifiedOrderNumbers)
	assert.Equal(t, domain.ImportPending, unrelated.Status)
}

func TestApprove_CrossCustomerShipRefused(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B1", Status: domain.BottleRented, AssignedCustomer: "cust-beta", ProductCode: "P1"})

	record := domain.VerificationRecord{
		ID: "doc1_0", OrderNumber: "100", CustomerName: "Acme",
		Scans: []domain.ScanEvent{shipEvent("100", "B1")},
	}

	result, err := f.engine.Approve(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Shipped)
	assert.Equal(t, 1, result.Skipped)
	require.NotEmpty(t, result.Warnings)

	bottle, _ := f.custody.GetBottle(context.Background(), testOrg, "B1")
	assert.Equal(t, "cust-beta", bottle.AssignedCustomer)
}

func TestApprove_SameCustomerShipDoesNotDuplicateRental(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B1", Status: domain.BottleDelivered, AssignedCustomer: "cust-acme", ProductCode: "P1"})
	f.custody.rentals = append(f.custody.rentals, &domain.Rental{ID: "r1", BottleBarcode: "B1", CustomerID: "cust-acme"})

	record := domain.VerificationRecord{
		ID: "doc1_0", OrderNumber: "100", CustomerName: "Acme",
		Scans: []domain.ScanEvent{shipEvent("100", "B1")},
	}

	result, err := f.engine.Approve(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Shipped)
	assert.Len(t, f.custody.openRentals(), 1)

	// Drifted status repaired
	bottle, _ := f.custody.GetBottle(context.Background(), testOrg, "B1")
	assert.Equal(t, domain.BottleRented, bottle.Status)
}

func TestApprove_MissingBottleWarnsAndContinues(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B2", Status: domain.BottleAvailable, ProductCode: "P1"})

	record := domain.VerificationRecord{
		ID: "doc1_0", OrderNumber: "100", CustomerName: "Acme",
		Scans: []domain.ScanEvent{shipEvent("100", "MISSING"), shipEvent("100", "B2")},
	}

	result, err := f.engine.Approve(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Shipped)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, result.Warnings, 1)
}

func TestReject_RevertsReturnedBottle(t *testing.T) {
	f := newFixture()
	// A return scan had flipped the bottle to empty while still assigned
	f.custody.addBottle(domain.Bottle{Barcode: "B4", Status: domain.BottleEmpty, AssignedCustomer: "cust-acme", ProductCode: "P1"})

	record := domain.VerificationRecord{
		ID: "doc1_0", OrderNumber: "100", CustomerName: "Acme",
		Scans: []domain.ScanEvent{returnEvent("100", "B4")},
	}

	_, err := f.engine.Reject(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	bottle, _ := f.custody.GetBottle(context.Background(), testOrg, "B4")
	assert.Equal(t, domain.BottleRented, bottle.Status)
}

func TestReject_UnassignedEmptyBottleBecomesAvailable(t *testing.T) {
	f := newFixture()
	f.custody.addBottle(domain.Bottle{Barcode: "B5", Status: domain.BottleEmpty, ProductCode: "P1"})

	record := domain.VerificationRecord{
		ID: "scanned_100", OrderNumber: "100", IsScannedOnly: true,
		Scans: []domain.ScanEvent{returnEvent("100", "B5")},
	}

	_, err := f.engine.Reject(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	bottle, _ := f.custody.GetBottle(context.Background(), testOrg, "B5")
	assert.Equal(t, domain.BottleAvailable, bottle.Status)
}

func TestReject_MarksScansAndDeletesWarehouseRows(t *testing.T) {
	f := newFixture()
	f.scans.events = []domain.ScanEvent{
		{OrderNumber: "100", Barcode: "B1", Source: domain.SourceWarehouse, Status: domain.ScanPending},
		{OrderNumber: "100", Barcode: "B1", Source: domain.SourceMobile, Status: domain.ScanPending},
	}

	record := domain.VerificationRecord{
		ID: "scanned_100", OrderNumber: "100", IsScannedOnly: true,
		Scans: []domain.ScanEvent{shipEvent("100", "B1")},
	}

	_, err := f.engine.Reject(context.Background(), testOrg, record, nil, "tester")
	require.NoError(t, err)

	require.Len(t, f.scans.statusChanges, 1)
	assert.Equal(t, domain.ScanRejected, f.scans.statusChanges[0].status)

	// Warehouse row deleted, mobile row retained
	assert.Equal(t, []string{"100"}, f.scans.deletedOrders)
	require.Len(t, f.scans.events, 1)
	assert.Equal(t, domain.SourceMobile, f.scans.events[0].Source)
}

func TestReject_MarksDocumentRejectedAndWithdrawsVerification(t *testing.T) {
	f := newFixture()
	doc := invoiceDoc("doc1", "100")
	doc.VerifiedOrderNumbers = []string{"100"}
	f.imports.docs = append(f.imports.docs, doc)
	f.custody.rentals = append(f.custody.rentals, &domain.Rental{ID: "dns1", OrderNumber: "100", IsDNS: true, CustomerID: "cust-acme"})

	record := domain.VerificationRecord{
		ID: "doc1_0", DocumentID: "doc1", Kind: domain.KindInvoice,
		OrderNumber: "100", CustomerName: "Acme",
	}

	_, err := f.engine.Reject(context.Background(), testOrg, record, doc, "tester")
	require.NoError(t, err)

	assert.Equal(t, domain.ImportRejected, doc.Status)
	assert.NotNil(t, doc.RejectedAt)
	assert.Empty(t, f.custody.rentals)
}
