package outbox

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// ParseTable parses "table" or "schema.table". Parts are limited to ASCII
// letters, digits and underscores.
func ParseTable(s string) (pgx.Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalidConfig("table name is empty")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, invalidConfig("invalid table %q (expected table or schema.table)", s)
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if !plainIdentifier(p) {
			return nil, invalidConfig("invalid table %q (bad part %q)", s, p)
		}
		parts[i] = p
	}
	return pgx.Identifier(parts), nil
}

func plainIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}

// TableLabel is the dotted form of table used in logs and metric labels.
func TableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}
