package model

import "time"

// RequiredChannel is one gating condition. A user passes the membership
// gate only if every configured channel reports them as a member.
//
// InviteLink is a cached value with a freshness window; InviteLinkAt
// records when it was last resolved. IsPublic distinguishes channels the
// bot can always query from private ones that may not be verifiable.
type RequiredChannel struct {
	ID           string     `db:"id" gorm:"primaryKey;size:64"`
	Title        string     `db:"title" gorm:"size:128"`
	InviteLink   *string    `db:"invite_link" gorm:"type:text"`
	InviteLinkAt *time.Time `db:"invite_link_at"`
	IsPublic     bool       `db:"is_public" gorm:"not null;default:true"`
	AddedBy      int64      `db:"added_by" gorm:"not null"`
	AddedAt      time.Time  `db:"added_at" gorm:"autoCreateTime"`
}
