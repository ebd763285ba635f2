package model

import "time"

// User is a participant known to the system, keyed by the external chat
// identity. Rows are upserted on every observed interaction.
type User struct {
	ID           int64     `db:"id" gorm:"primaryKey;autoIncrement:false"`
	DisplayName  string    `db:"display_name" gorm:"size:128;not null"`
	Username     string    `db:"username" gorm:"size:64"`
	LastActiveAt time.Time `db:"last_active_at" gorm:"not null;index"`
}
