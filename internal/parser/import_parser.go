package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"cylinder-recon/internal/domain"
	"cylinder-recon/pkg/logger"
)

// ImportCSVParser parses uploaded invoice/receipt CSV exports into import
// rows. Malformed rows are skipped with a warning rather than failing the
// whole upload; only an unreadable header or missing required columns abort.
type ImportCSVParser struct{}

func NewImportCSVParser() *ImportCSVParser {
	return &ImportCSVParser{}
}

// Parse reads the CSV stream and returns the parsed rows plus per-line
// warnings for rows that were skipped
func (p *ImportCSVParser) Parse(r io.Reader) ([]domain.ImportRow, []string, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to read CSV header")
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	columnMap := mapColumns(header)
	if !validateColumns(columnMap) {
		return nil, nil, fmt.Errorf("invalid CSV format: missing required columns (order_number, product_code)")
	}

	var rows []domain.ImportRow
	var warnings []string
	lineNumber := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNumber++
		if err != nil {
			logger.GetLogger().WithError(err).WithField("line", lineNumber).Warn("Failed to read CSV row, skipping")
			warnings = append(warnings, fmt.Sprintf("line %d: unreadable row", lineNumber))
			continue
		}

		row, err := p.parseRecord(record, columnMap)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("line", lineNumber).Warn("Failed to parse record, skipping")
			warnings = append(warnings, fmt.Sprintf("line %d: %v", lineNumber, err))
			continue
		}
		rows = append(rows, *row)
	}

	return rows, warnings, nil
}

func (p *ImportCSVParser) parseRecord(record []string, columnMap map[string]int) (*domain.ImportRow, error) {
	orderNumber := field(record, columnMap, "order_number")
	if orderNumber == "" {
		return nil, fmt.Errorf("empty order_number")
	}

	productCode := field(record, columnMap, "product_code")
	if productCode == "" {
		return nil, fmt.Errorf("empty product_code")
	}

	qtyShipped, err := parseQuantity(field(record, columnMap, "qty_out"))
	if err != nil {
		return nil, fmt.Errorf("invalid qty_out: %w", err)
	}
	qtyReturned, err := parseQuantity(field(record, columnMap, "qty_in"))
	if err != nil {
		return nil, fmt.Errorf("invalid qty_in: %w", err)
	}

	row := &domain.ImportRow{
		OrderNumber:  orderNumber,
		CustomerName: field(record, columnMap, "customer_name"),
		CustomerID:   field(record, columnMap, "customer_id"),
		ProductCode:  productCode,
		Description:  field(record, columnMap, "description"),
		SerialNumber: field(record, columnMap, "serial_number"),
		QtyShipped:   qtyShipped,
		QtyReturned:  qtyReturned,
		Location:     field(record, columnMap, "location"),
	}

	if dateStr := field(record, columnMap, "date"); dateStr != "" {
		date, err := parseDate(dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid date '%s': %w", dateStr, err)
		}
		row.Date = date.Format("2006-01-02")
	}

	return row, nil
}

func field(record []string, columnMap map[string]int, name string) string {
	idx, ok := columnMap[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseQuantity(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func mapColumns(header []string) map[string]int {
	columnMap := make(map[string]int)
	for i, col := range header {
		normalized := strings.ToLower(strings.TrimSpace(col))
		columnMap[normalized] = i
	}
	return columnMap
}

func validateColumns(columnMap map[string]int) bool {
	requiredColumns := []string{"order_number", "product_code"}
	for _, col := range requiredColumns {
		if _, exists := columnMap[col]; !exists {
			return false
		}
	}
	return true
}

func parseDate(dateStr string) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"02/01/2006",
		"01/02/2006",
		"2006/01/02",
		time.RFC3339,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
