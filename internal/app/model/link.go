package model

import "time"

// Link is a protected-link record: an opaque token standing in for a
// sensitive destination URI. The token is the primary key and immutable,
// TargetURI never changes after creation, and Active only ever transitions
// true -> false.
type Link struct {
	Token     string     `db:"token" gorm:"primaryKey;size:32"`
	ShortID   string     `db:"short_id" gorm:"size:8;not null;index"`
	TargetURI string     `db:"target_uri" gorm:"type:text;not null"`
	OwnerID   int64      `db:"owner_id" gorm:"not null;index"`
	Active    bool       `db:"active" gorm:"not null;default:true;index"`
	Clicks    int64      `db:"clicks" gorm:"not null;default:0"`
	RevokedAt *time.Time `db:"revoked_at"`
	CreatedAt time.Time  `db:"created_at" gorm:"autoCreateTime;index"`
}
