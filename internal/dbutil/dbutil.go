// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package dbutil contains helpers for working with the registry's SQL
// stores across sqlite and postgres.
package dbutil

import (
	"strings"

	"github.com/zeebo/errs"
)

// Error is the default dbutil error class.
var Error = errs.Class("dbutil")

// Implementation identifies a database implementation.
type Implementation int

// Supported database implementations.
const (
	Unknown Implementation = iota
	SQLite
	Postgres
)

// SplitConnStr returns the driver name, data source and implementation for
// a database URL.
func SplitConnStr(s string) (driver string, source string, implementation Implementation, err error) {
	switch {
	case strings.HasPrefix(s, "sqlite3://"):
		return "sqlite3", strings.TrimPrefix(s, "sqlite3://"), SQLite, nil
	case strings.HasPrefix(s, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(s, "sqlite://"), SQLite, nil
	case strings.HasPrefix(s, "postgres://"), strings.HasPrefix(s, "postgresql://"):
		return "postgres", s, Postgres, nil
	}
	return "", "", Unknown, Error.New("unsupported database url %q", s)
}

// Rebind transforms a query with ? placeholders into the placeholder style
// of the given implementation.
func Rebind(implementation Implementation, query string) string {
	if implementation != Postgres {
		return query
	}

	var out strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			out.WriteByte('$')
			out.WriteString(itoa(n))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
