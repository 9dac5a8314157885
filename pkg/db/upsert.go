package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertClause builds a single-statement "insert, on key conflict update
// every other column" clause. Each dialect renders it natively
// (ON CONFLICT ... DO UPDATE, ON DUPLICATE KEY UPDATE).
func UpsertClause(keys []string, update []string) clause.OnConflict {
	cols := make([]clause.Column, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, clause.Column{Name: k})
	}
	return clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(update),
	}
}

// Upsert inserts value or updates the listed columns of the row holding the
// same key.
func Upsert(tx *gorm.DB, value any, keys []string, update []string) (int64, error) {
	res := tx.Clauses(UpsertClause(keys, update)).Create(value)
	return res.RowsAffected, res.Error
}

// ForUpdate returns a row locking clause on backends that support it.
// SQLite serializes writers on the file so it is skipped there.
func ForUpdate(tx *gorm.DB) string {
	if tx == nil || tx.Dialector == nil {
		return ""
	}
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE"
	default:
		return ""
	}
}
