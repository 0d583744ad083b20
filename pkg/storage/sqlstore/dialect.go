package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/platinummonkey/gatehouse/pkg/storage"
)

// Dialect captures the differences between the supported databases. Queries
// are written with ? placeholders and rebound per dialect.
type Dialect struct {
	Name   string
	Driver string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var (
	Postgres = Dialect{Name: storage.BackendPostgres, Driver: "postgres", numbered: true}
	SQLite   = Dialect{Name: storage.BackendSQLite, Driver: "sqlite3"}
)

// DialectFor returns the dialect for a backend name
func DialectFor(backend string) (Dialect, error) {
	switch backend {
	case storage.BackendPostgres:
		return Postgres, nil
	case storage.BackendSQLite:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// Rebind rewrites ? placeholders for the dialect
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
