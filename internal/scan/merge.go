package scan

import (
	"sort"

	"cylinder-recon/internal/domain"
	"cylinder-recon/pkg/logger"
)

// mergeKey identifies one logical scan: the same bottle moving the same way
// on the same order is one event no matter how many times it was captured
type mergeKey struct {
	order     string
	barcode   string
	direction domain.ScanDirection
}

// Merge folds the warehouse scanner table and the mobile-app scan table into
// one logical scan set. Rejected rows are excluded before merging. For rows
// sharing (normalized order, canonical barcode, direction) the one with the
// later created_at wins; equal or missing timestamps resolve by source
// priority, with the mobile table winning because the reject path retains
// mobile rows as the surviving source of truth.
func Merge(warehouse, mobile []domain.ScanEvent) []domain.ScanEvent {
	merged := make(map[mergeKey]domain.ScanEvent, len(warehouse)+len(mobile))

	consider := func(event domain.ScanEvent) {
		if event.Status == domain.ScanRejected {
			return
		}
		Normalize(&event)

		key := mergeKey{
			order:     NormalizeOrderNumber(event.OrderNumber),
			barcode:   CanonicalBarcode(event.Barcode),
			direction: event.Direction,
		}

		existing, ok := merged[key]
		if !ok {
			merged[key] = event
			return
		}
		if supersedes(event, existing) {
			merged[key] = event
		}
	}

	for _, event := range warehouse {
		consider(event)
	}
	for _, event := range mobile {
		consider(event)
	}

	result := make([]domain.ScanEvent, 0, len(merged))
	for _, event := range merged {
		result = append(result, event)
	}

	// Deterministic output order regardless of map iteration
	sort.Slice(result, func(i, j int) bool {
		if result[i].OrderNumber != result[j].OrderNumber {
			return result[i].OrderNumber < result[j].OrderNumber
		}
		if result[i].Barcode != result[j].Barcode {
			return result[i].Barcode < result[j].Barcode
		}
		return result[i].Direction < result[j].Direction
	})

	logger.GetLogger().WithFields(map[string]interface{}{
		"warehouse_count": len(warehouse),
		"mobile_count":    len(mobile),
		"merged_count":    len(result),
	}).Debug("Merged scan sources")

	return result
}

// supersedes reports whether candidate should replace current under the
// later-timestamp-wins rule, with mobile winning exact-timestamp ties
func supersedes(candidate, current domain.ScanEvent) bool {
	if candidate.CreatedAt.After(current.CreatedAt) {
		return true
	}
	if current.CreatedAt.After(candidate.CreatedAt) {
		return false
	}
	return candidate.Source == domain.SourceMobile && current.Source != domain.SourceMobile
}

// FilterByOrder returns the events whose normalized order number matches
func FilterByOrder(events []domain.ScanEvent, orderNumber string) []domain.ScanEvent {
	want := NormalizeOrderNumber(orderNumber)
	var matched []domain.ScanEvent
	for _, event := range events {
		if NormalizeOrderNumber(event.OrderNumber) == want {
			matched = append(matched, event)
		}
	}
	return matched
}
