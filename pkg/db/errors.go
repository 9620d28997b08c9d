package db

import "strings"

// IsUniqueViolation reports whether err is a unique-constraint violation from
// either backing driver. With no names it matches any unique violation. With
// names it additionally requires one of them in the message; callers pass the
// Postgres constraint name and the table.column form, because sqlite names the
// columns rather than the index.
func IsUniqueViolation(err error, names ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if name != "" && strings.Contains(msg, name) {
			return true
		}
	}
	return false
}
