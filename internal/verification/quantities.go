package verification

import (
	"fmt"
	"sort"

	"cylinder-recon/internal/domain"
	"cylinder-recon/internal/scan"
)

// AssetInfo is the product metadata attached to line items for display and
// for scan-to-product resolution
type AssetInfo struct {
	ProductCode string
	Description string
	Category    string
	Group       string
	Type        string
}

// AssetResolver resolves barcodes and product codes to asset metadata.
// Implemented by the read-through asset cache; tests supply a map-backed
// fake.
type AssetResolver interface {
	ByBarcode(barcode string) (AssetInfo, bool)
	ByProductCode(code string) (AssetInfo, bool)
}

// Reconciler computes per-product scanned totals against invoiced
// quantities and flags lines needing operator attention
type Reconciler struct {
	resolver AssetResolver
}

func NewReconciler(resolver AssetResolver) *Reconciler {
	return &Reconciler{resolver: resolver}
}

// countKey dedupes scan counting: one unique bottle moving one way on one
// product line counts once
type countKey struct {
	product   string
	direction domain.ScanDirection
	barcode   string
}

// Reconcile fills ScannedShipped/ScannedReturned on every line item of the
// record and appends synthetic lines for scanned products the invoice does
// not carry. recordVerified enables the delivered-not-scanned flag, which
// only makes sense once the record has been verified or approved.
//
// Correction semantics: when the same physical barcode has several scan
// events within the order, only the temporally latest event's direction
// counts. An operator who scans SHIP then corrects to RETURN produces one
// RETURN, not one of each.
func (r *Reconciler) Reconcile(record *domain.VerificationRecord, recordVerified bool) {
	surviving := LatestPerBarcode(record.Scans)

	counted := make(map[countKey]bool)
	shipped := make(map[string]int)
	returned := make(map[string]int)
	var productOrder []string
	seenProduct := make(map[string]bool)

	lineProducts := make(map[string]bool)
	for _, item := range record.LineItems {
		lineProducts[item.ProductCode] = true
	}

	for _, event := range surviving {
		product := r.resolveProduct(event, lineProducts)
		key := countKey{
			product:   product,
			direction: event.Direction,
			barcode:   scan.CanonicalBarcode(event.Barcode),
		}
		if key.barcode == "" {
			// Barcode-less rows cannot be deduped by identity; a
			// second-granularity timestamp catches simultaneous
			// duplicate inserts
			key.barcode = fmt.Sprintf("ts:%d", event.CreatedAt.Unix())
		}
		if counted[key] {
			continue
		}
		counted[key] = true

		if !seenProduct[product] {
			seenProduct[product] = true
			productOrder = append(productOrder, product)
		}
		if event.Direction == domain.DirectionReturn {
			returned[product]++
		} else {
			shipped[product]++
		}
	}

	for i := range record.LineItems {
		item := &record.LineItems[i]
		item.ScannedShipped = shipped[item.ProductCode]
		item.ScannedReturned = returned[item.ProductCode]
		r.enrich(item)
		item.Highlight = highlightFor(item, recordVerified)
	}

	// Scanned products the invoice does not list still need to be visible;
	// they also correctly block exact-match auto-approval
	for _, product := range productOrder {
		if lineProducts[product] {
			continue
		}
		item := domain.LineItem{
			ProductCode:     product,
			ScannedShipped:  shipped[product],
			ScannedReturned: returned[product],
		}
		r.enrich(&item)
		item.Highlight = highlightFor(&item, recordVerified)
		record.LineItems = append(record.LineItems, item)
	}
}

// LatestPerBarcode keeps only the most recent event for each canonical
// barcode; barcode-less events pass through untouched
func LatestPerBarcode(events []domain.ScanEvent) []domain.ScanEvent {
	latest := make(map[string]domain.ScanEvent)
	var order []string
	var noBarcode []domain.ScanEvent

	for _, event := range events {
		barcode := scan.CanonicalBarcode(event.Barcode)
		if barcode == "" {
			noBarcode = append(noBarcode, event)
			continue
		}
		existing, ok := latest[barcode]
		if !ok {
			latest[barcode] = event
			order = append(order, barcode)
			continue
		}
		if event.CreatedAt.After(existing.CreatedAt) {
			latest[barcode] = event
		}
	}

	sort.Strings(order)
	result := make([]domain.ScanEvent, 0, len(latest)+len(noBarcode))
	for _, barcode := range order {
		result = append(result, latest[barcode])
	}
	return append(result, noBarcode...)
}

// resolveProduct attributes a scan to a product line: the scan's own product
// code wins, then the bottle record reached through the barcode, then the
// canonical barcode itself as a last-resort display key
func (r *Reconciler) resolveProduct(event domain.ScanEvent, lineProducts map[string]bool) string {
	if event.ProductCode != "" {
		return event.ProductCode
	}
	if r.resolver != nil {
		if info, ok := r.resolver.ByBarcode(scan.CanonicalBarcode(event.Barcode)); ok && info.ProductCode != "" {
			return info.ProductCode
		}
	}
	return scan.CanonicalBarcode(event.Barcode)
}

func (r *Reconciler) enrich(item *domain.LineItem) {
	if r.resolver == nil {
		return
	}
	info, ok := r.resolver.ByProductCode(item.ProductCode)
	if !ok {
		return
	}
	if item.Description == "" {
		item.Description = info.Description
	}
	if item.Category == "" {
		item.Category = info.Category
	}
	if item.Group == "" {
		item.Group = info.Group
	}
	if item.Type == "" {
		item.Type = info.Type
	}
}

func highlightFor(item *domain.LineItem, recordVerified bool) domain.HighlightFlag {
	if item.Shipped > 0 && item.Returned > 0 {
		return domain.HighlightBothDirections
	}
	if item.Category == "" || item.Group == "" || item.Type == "" {
		return domain.HighlightMissingProductInfo
	}
	if recordVerified && item.Shipped > 0 && item.ScannedShipped == 0 {
		return domain.HighlightDeliveredNotScanned
	}
	return domain.HighlightNone
}
