package model

import "time"

// BroadcastState tracks a broadcast through its lifecycle. Confirmation is
// an explicit step: a proposed broadcast never sends on its own.
type BroadcastState string

const (
	BroadcastPending    BroadcastState = "pending"
	BroadcastConfirmed  BroadcastState = "confirmed"
	BroadcastInProgress BroadcastState = "in_progress"
	BroadcastComplete   BroadcastState = "complete"
)

// BroadcastRecord is the append-only audit entry written once a broadcast
// run completes. Rows are never mutated after insert.
type BroadcastRecord struct {
	ID              string    `db:"id" gorm:"primaryKey;size:36"`
	AdminID         int64     `db:"admin_id" gorm:"not null;index"`
	SentAt          time.Time `db:"sent_at" gorm:"not null;index"`
	TotalRecipients int64     `db:"total_recipients" gorm:"not null"`
	SuccessCount    int64     `db:"success_count" gorm:"not null"`
	FailureCount    int64     `db:"failure_count" gorm:"not null"`
}
