package repository

import (
	"database/sql"
	"strings"
)

// normalize mirrors scan.NormalizeOrderNumber for values compared in SQL
func normalize(order string) string {
	trimmed := strings.TrimSpace(order)
	stripped := strings.TrimLeft(trimmed, "0")
	if stripped == "" {
		return trimmed
	}
	return stripped
}

func normalizeAll(orders []string) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, normalize(o))
	}
	return out
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
