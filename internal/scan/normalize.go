package scan

import (
	"strings"

	"cylinder-recon/internal/domain"
)

// CanonicalBarcode strips leading zeros so that "00123" and "123" merge to
// the same physical bottle. If stripping empties the string (an all-zero
// barcode), the trimmed original is returned instead so the scan is never
// silently dropped.
func CanonicalBarcode(barcode string) string {
	trimmed := strings.TrimSpace(barcode)
	stripped := strings.TrimLeft(trimmed, "0")
	if stripped == "" {
		return trimmed
	}
	return stripped
}

// NormalizeOrderNumber applies the same leading-zero canonicalization to
// order numbers, which arrive zero-padded from some import sources
func NormalizeOrderNumber(order string) string {
	trimmed := strings.TrimSpace(order)
	stripped := strings.TrimLeft(trimmed, "0")
	if stripped == "" {
		return trimmed
	}
	return stripped
}

// Classify derives a scan direction from the heterogeneous mode/action/
// scan_type fields the two scan sources populate. Evaluation order: explicit
// mode first, then action, then scan_type. Malformed input defaults to SHIP
// so no scan is ever dropped.
func Classify(mode, action, scanType string) domain.ScanDirection {
	switch strings.ToUpper(strings.TrimSpace(mode)) {
	case "RETURN", "PICKUP":
		return domain.DirectionReturn
	case "SHIP", "DELIVERY":
		return domain.DirectionShip
	}

	switch strings.ToLower(strings.TrimSpace(action)) {
	case "in":
		return domain.DirectionReturn
	case "out":
		return domain.DirectionShip
	}

	switch strings.ToLower(strings.TrimSpace(scanType)) {
	case "pickup", "return":
		return domain.DirectionReturn
	case "delivery", "ship":
		return domain.DirectionShip
	}

	return domain.DirectionShip
}

// Normalize fills the derived fields of a raw scan event in place
func Normalize(event *domain.ScanEvent) {
	event.Direction = Classify(event.Mode, event.Action, event.ScanType)
}
