// services/db.go
package services

import (
	"math"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate takes a row-level lock on dialects that support it. The
// in-memory sqlite database used by the test suite serializes writers on
// its own and rejects FOR UPDATE syntax.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// round1 keeps user-facing percentages to one decimal place.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
