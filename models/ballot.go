package models

import "time"

// Ballot is one user's accepted submission for a poll.
// The (poll_id, user_id) unique index is the persisted per-user marker.
type Ballot struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	PollID           string         `gorm:"size:36;not null;uniqueIndex:idx_ballot_poll_user" json:"poll_id"`
	UserID           string         `gorm:"size:36;not null;uniqueIndex:idx_ballot_poll_user" json:"-"`
	Selections       []string       `gorm:"type:text;serializer:json" json:"selections"`
	Ranking          map[string]int `gorm:"type:text;serializer:json" json:"ranking,omitempty"`
	Anonymous        bool           `gorm:"not null;default:false" json:"anonymous"`
	VerificationCode string         `gorm:"size:32" json:"verification_code,omitempty"`
	CreatedAt        time.Time      `json:"timestamp"`
}
