package sqlsource

import (
	"strconv"
	"strings"
)

// Dialect selects the driver, identifier quoting and placeholder style.
type Dialect int

// Supported dialects
const (
	Postgres Dialect = iota
	MySQL
)

func (d Dialect) String() string {
	if d == MySQL {
		return "mysql"
	}
	return "postgres"
}

// Driver returns the database/sql driver name
func (d Dialect) Driver() string {
	if d == MySQL {
		return "mysql"
	}
	return "pgx"
}

// Quote quotes a possibly schema-qualified identifier.
func (d Dialect) Quote(ident string) string {
	q := `"`
	if d == MySQL {
		q = "`"
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// Placeholder returns the n-th (1-based) bind parameter marker.
func (d Dialect) Placeholder(n int) string {
	if d == MySQL {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}
