// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"errors"
	"strings"

	sqlite3 "modernc.org/sqlite/lib"
)

type codeError interface {
	Code() int
}

// IsQuotaExceeded reports whether err means the journal limit or the database
// page budget is exhausted.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrJournalQuotaExceeded) || errors.Is(err, ErrCacheQuotaExceeded) {
		return true
	}
	var coder codeError
	if errors.As(err, &coder) && coder.Code() == int(sqlite3.SQLITE_FULL) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "database or disk is full")
}
