package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Locked adds a row-locking clause. SQLite has no row locks and a single
// writer, so the clause is skipped there.
func Locked(tx *gorm.DB, lock clause.Locking) *gorm.DB {
	if tx == nil {
		return nil
	}
	if tx.Dialector != nil && tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(lock)
}
