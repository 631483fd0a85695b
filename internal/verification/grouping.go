package verification

import (
	"fmt"
	"sort"
	"strings"

	"cylinder-recon/internal/domain"
	"cylinder-recon/internal/scan"
	"cylinder-recon/pkg/logger"
)

// groupKey is the unit a human verifies: one order for one customer
type groupKey struct {
	order        string
	customerName string
	customerID   string
}

// BuildInput carries everything record assembly needs for one organization
type BuildInput struct {
	Documents []domain.ImportDocument
	Scans     []domain.ScanEvent
	// ImportedOrders holds normalized order numbers present in any import
	// document of the organization, regardless of status
	ImportedOrders map[string]bool
	// ApprovedOrders holds normalized order numbers already approved
	// anywhere in the organization
	ApprovedOrders map[string]bool
}

// SplitResult pairs a derived record with its owning document
type SplitResult struct {
	Record   domain.VerificationRecord
	Document *domain.ImportDocument
}

// SplitDocument explodes one import document, whose rows may span many
// orders and customers, into one verification record per (order, customer)
// group. Rows missing customer fields fall back to the document-level
// customer.
func SplitDocument(doc domain.ImportDocument) []domain.VerificationRecord {
	if len(doc.Rows) == 0 {
		return nil
	}

	groups := make(map[groupKey][]domain.ImportRow)
	var order []groupKey
	for _, row := range doc.Rows {
		key := groupKey{
			order:        scan.NormalizeOrderNumber(row.OrderNumber),
			customerName: customerNameOf(row, doc),
			customerID:   customerIDOf(row, doc),
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	records := make([]domain.VerificationRecord, 0, len(groups))
	for i, key := range order {
		rows := groups[key]
		first := rows[0]

		record := domain.VerificationRecord{
			ID:           fmt.Sprintf("%s_%d", doc.ID, i),
			DocumentID:   doc.ID,
			Kind:         doc.Kind,
			OrderNumber:  first.OrderNumber,
			CustomerName: key.customerName,
			CustomerID:   key.customerID,
			Date:         first.Date,
			Location:     firstNonEmpty(first.Location, doc.Location),
			Warnings:     doc.Warnings,
		}
		for _, row := range rows {
			record.LineItems = append(record.LineItems, domain.LineItem{
				ProductCode: row.ProductCode,
				Description: row.Description,
				Shipped:     row.QtyShipped,
				Returned:    row.QtyReturned,
			})
		}
		records = append(records, record)
	}
	return records
}

// BuildRecords produces the unified record list for one organization: import
// documents are split per (order, customer), matching scans are attached,
// and scan groups with no import row are synthesized as scanned-only
// records. A record whose order was approved through some other document is
// dropped as a duplicate; the document that carries the verification itself
// keeps its record so the order surfaces as verified.
func BuildRecords(in BuildInput) []SplitResult {
	var results []SplitResult
	importKeys := make(map[groupKey]bool)

	for i := range in.Documents {
		doc := &in.Documents[i]
		for _, record := range SplitDocument(*doc) {
			key := keyOf(record)
			importKeys[key] = true

			if in.ApprovedOrders[key.order] && !documentVerifiesOrder(doc, key.order) {
				continue
			}
			record.Scans = attachScans(in.Scans, record)
			results = append(results, SplitResult{Record: record, Document: doc})
		}
	}

	// Synthesize scanned-only records for (order, customer) keys present
	// only in scans. The import-derived twin wins when both exist, since
	// approval authority lives with the import record. Scans already marked
	// approved were consumed by an earlier approval and must not found a new
	// group, though they still attach to import records above.
	scanGroups := make(map[groupKey][]domain.ScanEvent)
	var scanOrder []groupKey
	for _, event := range in.Scans {
		if event.OrderNumber == "" || event.Status == domain.ScanApproved {
			continue
		}
		key := groupKey{
			order:        scan.NormalizeOrderNumber(event.OrderNumber),
			customerName: strings.TrimSpace(event.CustomerName),
			customerID:   strings.TrimSpace(event.CustomerID),
		}
		if _, seen := scanGroups[key]; !seen {
			scanOrder = append(scanOrder, key)
		}
		scanGroups[key] = append(scanGroups[key], event)
	}

	for _, key := range scanOrder {
		if importKeys[key] || in.ApprovedOrders[key.order] {
			continue
		}
		if coveredByImport(importKeys, key) {
			continue
		}
		events := scanGroups[key]
		record := synthesizeScannedOnly(key, events, in.ImportedOrders)
		results = append(results, SplitResult{Record: record})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Record.ID < results[j].Record.ID
	})

	logger.GetLogger().WithFields(map[string]interface{}{
		"documents": len(in.Documents),
		"scans":     len(in.Scans),
		"records":   len(results),
	}).Debug("Built verification records")

	return results
}

// documentVerifiesOrder reports whether this document itself records the
// order's approval, either in its verified set or through a fully
// approved/verified status
func documentVerifiesOrder(doc *domain.ImportDocument, order string) bool {
	if doc.Status == domain.ImportApproved || doc.Status == domain.ImportVerified {
		return true
	}
	for _, verified := range doc.VerifiedOrderNumbers {
		if scan.NormalizeOrderNumber(verified) == order {
			return true
		}
	}
	return false
}

// coveredByImport treats a scan group as matched when an import record for
// the same order exists and either side lacks customer identity; approval
// must go through that import record rather than a scanned-only twin
func coveredByImport(importKeys map[groupKey]bool, key groupKey) bool {
	for imported := range importKeys {
		if imported.order != key.order {
			continue
		}
		if key.customerName == "" && key.customerID == "" {
			return true
		}
		if imported.customerID != "" && imported.customerID == key.customerID {
			return true
		}
		if imported.customerName != "" && strings.EqualFold(imported.customerName, key.customerName) {
			return true
		}
	}
	return false
}

func synthesizeScannedOnly(key groupKey, events []domain.ScanEvent, importedOrders map[string]bool) domain.VerificationRecord {
	first := events[0]
	record := domain.VerificationRecord{
		ID:            "scanned_" + key.order,
		OrderNumber:   first.OrderNumber,
		CustomerName:  first.CustomerName,
		CustomerID:    first.CustomerID,
		Location:      first.Location,
		IsScannedOnly: true,
		Scans:         events,
		Status:        domain.StatusScannedOnly,
	}
	// An import for the bare order number anywhere means an invoice is on
	// its way through verification; surface the group as pending instead
	if importedOrders[key.order] {
		record.Status = domain.StatusPending
	}
	return record
}

// attachScans selects the merged scans belonging to a record: same
// normalized order, and compatible customer identity (scans frequently lack
// customer fields, which is compatible with any customer)
func attachScans(events []domain.ScanEvent, record domain.VerificationRecord) []domain.ScanEvent {
	order := scan.NormalizeOrderNumber(record.OrderNumber)
	var matched []domain.ScanEvent
	for _, event := range events {
		if scan.NormalizeOrderNumber(event.OrderNumber) != order {
			continue
		}
		if !customerCompatible(event, record) {
			continue
		}
		matched = append(matched, event)
	}
	return matched
}

func customerCompatible(event domain.ScanEvent, record domain.VerificationRecord) bool {
	if event.CustomerID == "" && event.CustomerName == "" {
		return true
	}
	if event.CustomerID != "" && record.CustomerID != "" {
		return event.CustomerID == record.CustomerID
	}
	if event.CustomerName != "" && record.CustomerName != "" {
		return strings.EqualFold(strings.TrimSpace(event.CustomerName), strings.TrimSpace(record.CustomerName))
	}
	return true
}

func keyOf(record domain.VerificationRecord) groupKey {
	return groupKey{
		order:        scan.NormalizeOrderNumber(record.OrderNumber),
		customerName: strings.TrimSpace(record.CustomerName),
		customerID:   strings.TrimSpace(record.CustomerID),
	}
}

func customerNameOf(row domain.ImportRow, doc domain.ImportDocument) string {
	if name := strings.TrimSpace(row.CustomerName); name != "" {
		return name
	}
	return strings.TrimSpace(doc.CustomerName)
}

func customerIDOf(row domain.ImportRow, doc domain.ImportDocument) string {
	if id := strings.TrimSpace(row.CustomerID); id != "" {
		return id
	}
	return strings.TrimSpace(doc.CustomerID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
