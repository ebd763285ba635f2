package model

import "time"

// RedeemEvent is an audit record for a successful redemption. Events flow
// through JetStream and are persisted by a background consumer; the click
// counter on the link itself is incremented synchronously and never
// depends on this pipeline.
type RedeemEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Token     string    `json:"token" gorm:"size:32;not null;index"`
	IP        string    `json:"ip" gorm:"size:64"`
	UserAgent string    `json:"user_agent" gorm:"type:text"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
}

const (
	RedeemStreamName    = "REDEMPTIONS"
	RedeemStreamSubject = "redemptions.events"
	RedeemConsumerName  = "redeem-logger"
	RedeemStreamMaxAge  = 30 * 24 * time.Hour
)
