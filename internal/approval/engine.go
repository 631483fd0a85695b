package approval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cylinder-recon/internal/domain"
	"cylinder-recon/internal/repository"
	"cylinder-recon/internal/scan"
	"cylinder-recon/pkg/logger"
)

// Invalidator drops cached asset entries after a custody write
type Invalidator interface {
	Invalidate(ctx context.Context, orgID, productCode string)
}

// Engine runs the approve/reject custody transitions. Failures on individual
// bottles become warnings; only a failed update of the owning import document
// fails the call.
type Engine struct {
	custody    repository.CustodyRepository
	scans      repository.ScanRepository
	imports    repository.ImportRepository
	exceptions repository.ExceptionRepository
	customers  repository.CustomerRepository
	cache      Invalidator
	now        func() time.Time
}

func NewEngine(
	custody repository.CustodyRepository,
	scans repository.ScanRepository,
	imports repository.ImportRepository,
	exceptions repository.ExceptionRepository,
	customers repository.CustomerRepository,
	cache Invalidator,
) *Engine {
	return &Engine{
		custody:    custody,
		scans:      scans,
		imports:    imports,
		exceptions: exceptions,
		customers:  customers,
		cache:      cache,
		now:        time.Now,
	}
}

// Result summarizes one approve/reject run
type Result struct {
	Shipped           int      `json:"shipped"`
	Returned          int      `json:"returned"`
	Skipped           int      `json:"skipped"`
	DNSCreated        int      `json:"dns_created"`
	ExceptionsCreated int      `json:"exceptions_created"`
	ScansUpdated      int64    `json:"scans_updated"`
	AlreadyApproved   bool     `json:"already_approved,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Summary is the single operator-facing message; detailed warnings go to the
// diagnostic log instead of a blocking dialog
func (r *Result) Summary() string {
	return fmt.Sprintf("shipped %d, returned %d, skipped %d, dns %d, exceptions %d, warnings %d",
		r.Shipped, r.Returned, r.Skipped, r.DNSCreated, r.ExceptionsCreated, len(r.Warnings))
}

func (r *Result) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Approve verifies a record: returns are processed strictly before ships,
// bottle custody and rentals are mutated per bottle, DNS rentals bill the
// invoiced-but-unscanned excess, and the owning document plus its pending
// siblings are marked verified.
func (e *Engine) Approve(ctx context.Context, orgID string, record domain.VerificationRecord, doc *domain.ImportDocument, actor string) (*Result, error) {
	result := &Result{}
	order := scan.NormalizeOrderNumber(record.OrderNumber)
	now := e.now()

	if doc != nil && containsOrder(doc.VerifiedOrderNumbers, order) {
		result.AlreadyApproved = true
		result.warnf("order %s already verified on document %s", record.OrderNumber, doc.ID)
		return result, nil
	}

	customerID, customerName := e.resolveCustomer(ctx, orgID, record, result)

	returnBarcodes, shipBarcodes := splitDirections(record.Scans)

	for _, barcode := range returnBarcodes {
		e.processReturn(ctx, orgID, barcode, customerID, customerName, record, now, result)
	}
	for _, barcode := range shipBarcodes {
		e.processShip(ctx, orgID, barcode, customerID, customerName, record, now, result)
	}

	e.createDNSRentals(ctx, orgID, customerID, customerName, record, now, result)

	if doc != nil {
		if err := e.markVerified(ctx, orgID, doc, order, now); err != nil {
			// The one write whose failure would leave the record looking
			// unprocessed
			return result, fmt.Errorf("update document %s: %w", doc.ID, err)
		}
		e.approveSiblings(ctx, orgID, doc, order, now, result)
	}

	updated, err := e.scans.UpdateStatusByOrders(ctx, orgID, []string{record.OrderNumber}, domain.ScanApproved, actor, now)
	if err != nil {
		result.warnf("mark scans approved for order %s: %v", record.OrderNumber, err)
	}
	result.ScansUpdated = updated

	logger.GetLogger().WithFields(map[string]interface{}{
		"organization_id": orgID,
		"order_number":    record.OrderNumber,
		"summary":         result.Summary(),
	}).Info("Record approved")
	for _, warning := range result.Warnings {
		logger.GetLogger().WithField("order_number", record.OrderNumber).Warn(warning)
	}
	return result, nil
}

func (e *Engine) resolveCustomer(ctx context.Context, orgID string, record domain.VerificationRecord, result *Result) (string, string) {
	customer, err := e.customers.Resolve(ctx, orgID, record.CustomerID, record.CustomerName)
	if err != nil {
		result.warnf("resolve customer %q: %v", record.CustomerName, err)
	}
	if customer != nil {
		return customer.ID, customer.Name
	}
	return record.CustomerID, record.CustomerName
}

// splitDirections collects canonical barcodes by direction. A barcode scanned
// both ways within the order counts as RETURN only; the physical fact that it
// came back overrides that it was sent.
func splitDirections(events []domain.ScanEvent) (returns, ships []string) {
	returnSet := make(map[string]bool)
	shipSet := make(map[string]bool)
	for _, event := range events {
		barcode := scan.CanonicalBarcode(event.Barcode)
		if barcode == "" {
			continue
		}
		if event.Direction == domain.DirectionReturn {
			returnSet[barcode] = true
		} else {
			shipSet[barcode] = true
		}
	}
	for barcode := range returnSet {
		returns = append(returns, barcode)
	}
	for barcode := range shipSet {
		if !returnSet[barcode] {
			ships = append(ships, barcode)
		}
	}
	sort.Strings(returns)
	sort.Strings(ships)
	return returns, ships
}

func (e *Engine) processReturn(ctx context.Context, orgID, barcode, customerID, customerName string, record domain.VerificationRecord, now time.Time, result *Result) {
	bottle, err := e.custody.GetBottle(ctx, orgID, barcode)
	if err != nil {
		result.warnf("look up bottle %s: %v", barcode, err)
		result.Skipped++
		return
	}
	if bottle == nil {
		result.warnf("returned bottle %s not found", barcode)
		result.Skipped++
		return
	}

	onBalance := bottle.AssignedCustomer != "" && bottle.AssignedCustomer == customerID
	if !onBalance {
		rental, err := e.custody.GetOpenRental(ctx, orgID, barcode)
		if err != nil {
			result.warnf("look up rental for bottle %s: %v", barcode, err)
		}
		onBalance = rental != nil && rental.CustomerID == customerID
	}

	if !onBalance {
		e.recordBalanceException(ctx, orgID, barcode, customerID, record.OrderNumber, result)
		if err := e.custody.MarkEmpty(ctx, orgID, barcode); err != nil {
			result.warnf("mark bottle %s empty: %v", barcode, err)
		}
		e.invalidate(ctx, orgID, bottle.ProductCode)
		return
	}

	if err := e.custody.ReturnBottle(ctx, orgID, barcode, now.Format("2006-01-02"), record.Location, now); err != nil {
		result.warnf("return bottle %s: %v", barcode, err)
		result.Skipped++
		return
	}
	e.insertAudit(ctx, orgID, barcode, domain.DirectionReturn, customerID, customerName, record, now, result)
	e.invalidate(ctx, orgID, bottle.ProductCode)
	result.Returned++
}

func (e *Engine) processShip(ctx context.Context, orgID, barcode, customerID, customerName string, record domain.VerificationRecord, now time.Time, result *Result) {
	bottle, err := e.custody.GetBottle(ctx, orgID, barcode)
	if err != nil {
		result.warnf("look up bottle %s: %v", barcode, err)
		result.Skipped++
		return
	}
	if bottle == nil {
		result.warnf("shipped bottle %s not found", barcode)
		result.Skipped++
		return
	}

	if bottle.AssignedCustomer != "" && bottle.AssignedCustomer != customerID {
		// Cross-customer reassignment is never silent; a scanning error must
		// surface to an operator
		result.warnf("bottle %s is assigned to customer %s, not reassigning to %s", barcode, bottle.AssignedCustomer, customerID)
		result.Skipped++
		return
	}

	rental := domain.Rental{
		ID:           uuid.New().String(),
		CustomerID:   customerID,
		CustomerName: customerName,
		OrderNumber:  record.OrderNumber,
		ProductCode:  bottle.ProductCode,
		StartDate:    now.Format("2006-01-02"),
		RentalType:   "monthly",
		RentalAmount: decimal.Zero,
		TaxRate:      decimal.Zero,
		Location:     record.Location,
	}
	if _, err := e.custody.ShipBottle(ctx, orgID, barcode, rental); err != nil {
		result.warnf("ship bottle %s: %v", barcode, err)
		result.Skipped++
		return
	}
	e.insertAudit(ctx, orgID, barcode, domain.DirectionShip, customerID, customerName, record, now, result)
	e.invalidate(ctx, orgID, bottle.ProductCode)
	result.Shipped++
}

func (e *Engine) recordBalanceException(ctx context.Context, orgID, barcode, customerID, orderNumber string, result *Result) {
	exists, err := e.exceptions.Exists(ctx, orgID, barcode, orderNumber, domain.ExceptionNotOnBalance)
	if err != nil {
		result.warnf("check exception for bottle %s: %v", barcode, err)
		return
	}
	if exists {
		return
	}
	err = e.exceptions.Create(ctx, domain.Exception{
		OrganizationID:   orgID,
		AssetBarcode:     barcode,
		CustomerID:       customerID,
		OrderNumber:      orderNumber,
		ExceptionType:    domain.ExceptionNotOnBalance,
		ResolutionStatus: "RESOLVED",
	})
	if err != nil {
		result.warnf("create exception for bottle %s: %v", barcode, err)
		return
	}
	result.ExceptionsCreated++
}

func (e *Engine) insertAudit(ctx context.Context, orgID, barcode string, direction domain.ScanDirection, customerID, customerName string, record domain.VerificationRecord, now time.Time, result *Result) {
	err := e.scans.InsertAuditScan(ctx, domain.AuditScan{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Barcode:        barcode,
		Direction:      direction,
		CustomerID:     customerID,
		CustomerName:   customerName,
		OrderNumber:    record.OrderNumber,
		Location:       record.Location,
		Timestamp:      now,
	})
	if err != nil {
		result.warnf("insert audit scan for bottle %s: %v", barcode, err)
	}
}

// createDNSRentals bills every invoiced shipment that never produced a scan
func (e *Engine) createDNSRentals(ctx context.Context, orgID, customerID, customerName string, record domain.VerificationRecord, now time.Time, result *Result) {
	var rentals []domain.Rental
	for _, item := range record.LineItems {
		excess := item.Shipped - item.ScannedShipped
		for i := 0; i < excess; i++ {
			rentals = append(rentals, domain.Rental{
				CustomerID:   customerID,
				CustomerName: customerName,
				OrderNumber:  record.OrderNumber,
				ProductCode:  item.ProductCode,
				StartDate:    now.Format("2006-01-02"),
				RentalType:   "monthly",
				RentalAmount: decimal.Zero,
				TaxRate:      decimal.Zero,
				Location:     record.Location,
			})
		}
	}
	if len(rentals) == 0 {
		return
	}
	created, err := e.custody.CreateDNSRentals(ctx, orgID, rentals)
	if err != nil {
		result.warnf("create DNS rentals for order %s: %v", record.OrderNumber, err)
		return
	}
	result.DNSCreated = created
}

// markVerified adds the order to the document's verified set; the document
// flips to approved only once every distinct order it carries is verified
func (e *Engine) markVerified(ctx context.Context, orgID string, doc *domain.ImportDocument, order string, now time.Time) error {
	verified := appendOrder(doc.VerifiedOrderNumbers, order)

	allVerified := true
	for _, docOrder := range doc.OrderNumbers() {
		if !containsOrder(verified, scan.NormalizeOrderNumber(docOrder)) {
			allVerified = false
			break
		}
	}

	// Partial verification leaves the document status alone; orders not yet
	// verified must keep surfacing as pending
	status := doc.Status
	var approvedAt *time.Time
	if allVerified {
		status = domain.ImportApproved
		approvedAt = &now
	}

	if err := e.imports.UpdateVerification(ctx, orgID, doc.Kind, doc.ID, verified, status, approvedAt); err != nil {
		return err
	}
	doc.VerifiedOrderNumbers = verified
	doc.Status = status
	doc.ApprovedAt = approvedAt
	return nil
}

// approveSiblings verifies the same order on every other pending document
// that references it, so duplicate re-imports cannot resurface an approved
// order
func (e *Engine) approveSiblings(ctx context.Context, orgID string, primary *domain.ImportDocument, order string, now time.Time, result *Result) {
	for _, kind := range []domain.ImportKind{domain.KindInvoice, domain.KindReceipt} {
		docs, err := e.imports.ListByStatus(ctx, orgID, kind, domain.ImportPending)
		if err != nil {
			result.warnf("list pending %s documents: %v", kind, err)
			continue
		}
		for i := range docs {
			sibling := &docs[i]
			if sibling.ID == primary.ID && sibling.Kind == primary.Kind {
				continue
			}
			if !referencesOrder(sibling, order) {
				continue
			}
			if err := e.markVerified(ctx, orgID, sibling, order, now); err != nil {
				result.warnf("verify sibling document %s: %v", sibling.ID, err)
			}
		}
	}
}

// Reject reverses a pending record: bottles emptied by this order's return
// scans are restored, the scans are marked rejected, warehouse rows for the
// scan-only path are deleted, and the owning document is marked rejected.
// Partial verification already granted to the order is withdrawn along with
// its DNS billing rows.
func (e *Engine) Reject(ctx context.Context, orgID string, record domain.VerificationRecord, doc *domain.ImportDocument, actor string) (*Result, error) {
	result := &Result{}
	order := scan.NormalizeOrderNumber(record.OrderNumber)
	now := e.now()

	returnBarcodes, _ := splitDirections(record.Scans)
	for _, barcode := range returnBarcodes {
		if err := e.custody.RevertEmpty(ctx, orgID, barcode); err != nil {
			result.warnf("revert bottle %s: %v", barcode, err)
			result.Skipped++
			continue
		}
		result.Returned++
	}

	updated, err := e.scans.UpdateStatusByOrders(ctx, orgID, []string{record.OrderNumber}, domain.ScanRejected, actor, now)
	if err != nil {
		result.warnf("mark scans rejected for order %s: %v", record.OrderNumber, err)
	}
	result.ScansUpdated = updated

	if record.IsScannedOnly {
		deleted, err := e.scans.DeleteWarehouseByOrder(ctx, orgID, record.OrderNumber)
		if err != nil {
			result.warnf("delete warehouse scans for order %s: %v", record.OrderNumber, err)
		} else if deleted > 0 {
			logger.GetLogger().WithFields(map[string]interface{}{
				"order_number": record.OrderNumber,
				"deleted":      deleted,
			}).Info("Deleted warehouse scan rows on reject")
		}
	}

	if doc != nil {
		if containsOrder(doc.VerifiedOrderNumbers, order) {
			remaining := removeOrder(doc.VerifiedOrderNumbers, order)
			if err := e.imports.UpdateVerification(ctx, orgID, doc.Kind, doc.ID, remaining, doc.Status, doc.ApprovedAt); err != nil {
				result.warnf("withdraw verification on document %s: %v", doc.ID, err)
			}
			if _, err := e.custody.DeleteDNSRentals(ctx, orgID, record.OrderNumber); err != nil {
				result.warnf("delete DNS rentals for order %s: %v", record.OrderNumber, err)
			}
		}
		if err := e.imports.MarkRejected(ctx, orgID, doc.Kind, doc.ID, now); err != nil {
			return result, fmt.Errorf("mark document %s rejected: %w", doc.ID, err)
		}
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"organization_id": orgID,
		"order_number":    record.OrderNumber,
		"summary":         result.Summary(),
	}).Info("Record rejected")
	return result, nil
}

func (e *Engine) invalidate(ctx context.Context, orgID, productCode string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, orgID, productCode)
	}
}

func containsOrder(orders []string, normalized string) bool {
	for _, o := range orders {
		if scan.NormalizeOrderNumber(o) == normalized {
			return true
		}
	}
	return false
}

func appendOrder(orders []string, order string) []string {
	if containsOrder(orders, scan.NormalizeOrderNumber(order)) {
		return orders
	}
	out := make([]string, len(orders), len(orders)+1)
	copy(out, orders)
	return append(out, order)
}

func removeOrder(orders []string, normalized string) []string {
	var out []string
	for _, o := range orders {
		if scan.NormalizeOrderNumber(o) != normalized {
			out = append(out, o)
		}
	}
	return out
}

func referencesOrder(doc *domain.ImportDocument, normalized string) bool {
	for _, docOrder := range doc.OrderNumbers() {
		if scan.NormalizeOrderNumber(docOrder) == normalized {
			return true
		}
	}
	return false
}
