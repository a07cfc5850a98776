package orm

import "time"

// Record is the base for append-only tables: rows are inserted once and never
// updated or soft-deleted.
type Record struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
