package approval

import (
	"context"
	"fmt"

	"cylinder-recon/internal/domain"
	"cylinder-recon/internal/repository"
	"cylinder-recon/internal/scan"
	"cylinder-recon/pkg/logger"
)

// Policy gates freshly-imported records before a human sees them: exact
// quantity match on every product plus no scanned bottle currently sitting at
// a customer. A pass runs the full Approve side effects and stamps the
// auto_approved provenance on the document.
type Policy struct {
	engine  *Engine
	custody repository.CustodyRepository
	imports repository.ImportRepository
}

func NewPolicy(engine *Engine, custody repository.CustodyRepository, imports repository.ImportRepository) *Policy {
	return &Policy{engine: engine, custody: custody, imports: imports}
}

// Outcome reports what the gate decided and, on approval, what it did
type Outcome struct {
	Approved bool    `json:"approved"`
	Reason   string  `json:"reason"`
	Result   *Result `json:"result,omitempty"`
}

// Evaluate runs the gate for one record. Refusal is not an error; the record
// simply goes to manual verification with the refusal reason.
func (p *Policy) Evaluate(ctx context.Context, orgID string, record domain.VerificationRecord, doc *domain.ImportDocument, actor string) (*Outcome, error) {
	if len(record.Scans) == 0 {
		return &Outcome{Reason: "no scans for order"}, nil
	}

	for _, item := range record.LineItems {
		if item.ScannedShipped != item.Shipped || item.ScannedReturned != item.Returned {
			return &Outcome{
				Reason: fmt.Sprintf("quantity mismatch on %s: invoiced %d/%d, scanned %d/%d",
					item.ProductCode, item.Shipped, item.Returned, item.ScannedShipped, item.ScannedReturned),
			}, nil
		}
	}

	// An unexpected custody state forces manual verification rather than
	// being silently overridden
	for _, barcode := range scannedBarcodes(record.Scans) {
		bottle, err := p.custody.GetBottle(ctx, orgID, barcode)
		if err != nil {
			return nil, err
		}
		if bottle != nil && bottle.AtCustomer() {
			return &Outcome{
				Reason: fmt.Sprintf("bottle %s is at customer %s", barcode, bottle.AssignedCustomer),
			}, nil
		}
	}

	result, err := p.engine.Approve(ctx, orgID, record, doc, actor)
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("quantities matched exactly for order %s", record.OrderNumber)
	if doc != nil {
		if err := p.imports.MarkAutoApproved(ctx, orgID, doc.Kind, doc.ID, reason); err != nil {
			result.warnf("stamp auto-approval on document %s: %v", doc.ID, err)
		}
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"organization_id": orgID,
		"order_number":    record.OrderNumber,
		"reason":          reason,
	}).Info("Record auto-approved")

	return &Outcome{Approved: true, Reason: reason, Result: result}, nil
}

func scannedBarcodes(events []domain.ScanEvent) []string {
	seen := make(map[string]bool)
	var barcodes []string
	for _, event := range events {
		barcode := scan.CanonicalBarcode(event.Barcode)
		if barcode == "" || seen[barcode] {
			continue
		}
		seen[barcode] = true
		barcodes = append(barcodes, barcode)
	}
	return barcodes
}
