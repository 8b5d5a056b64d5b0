package models

import (
	"time"
)

// VotingMethod defines how a ballot selects options
type VotingMethod string

const (
	SingleChoice   VotingMethod = "single-choice"
	MultipleChoice VotingMethod = "multiple-choice"
	// RankedChoice is modeled but ballots for it are rejected
	RankedChoice VotingMethod = "ranked-choice"
)

func (m VotingMethod) Valid() bool {
	switch m {
	case SingleChoice, MultipleChoice, RankedChoice:
		return true
	}
	return false
}

// PollStatus is the stored lifecycle state of a poll
type PollStatus string

const (
	StatusDraft  PollStatus = "draft"
	StatusActive PollStatus = "active"
	StatusClosed PollStatus = "closed"
)

func (s PollStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusClosed:
		return true
	}
	return false
}

// Poll represents a voting poll
type Poll struct {
	// Seq 仅用于保持插入顺序
	Seq                 uint         `gorm:"primaryKey;autoIncrement" json:"-"`
	ID                  string       `gorm:"size:36;uniqueIndex;not null" json:"id"`
	Title               string       `gorm:"size:255;not null" json:"title"`
	Description         string       `gorm:"type:text" json:"description"`
	CreatedBy           string       `gorm:"size:36;index" json:"created_by"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
	StartDate           time.Time    `gorm:"not null" json:"start_date"`
	EndDate             *time.Time   `gorm:"index" json:"end_date"` // nil means no defined close
	Options             []PollOption `gorm:"foreignKey:PollID;references:ID;constraint:OnDelete:CASCADE" json:"options"`
	VotingMethod        VotingMethod `gorm:"size:32;not null" json:"voting_method"`
	AllowAnonymous      bool         `gorm:"not null;default:false" json:"allow_anonymous"`
	RequireVerification bool         `gorm:"not null;default:false" json:"require_verification"`
	Status              PollStatus   `gorm:"size:16;not null;index" json:"status"`
	TotalVotes          int64        `gorm:"not null;default:0" json:"total_votes"`
	Constituency        string       `gorm:"size:255" json:"constituency,omitempty"`
	ElectionType        string       `gorm:"size:64;index" json:"election_type,omitempty"`
}

// PollOption represents an option within a poll
type PollOption struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	PollID   string `gorm:"size:36;not null;index" json:"poll_id"`
	Position int    `gorm:"not null" json:"position"`
	Text     string `gorm:"size:255;not null" json:"text"`
	Votes    int64  `gorm:"not null;default:0" json:"votes"`
	Party    string `gorm:"size:255" json:"party,omitempty"`
	Bio      string `gorm:"type:text" json:"bio,omitempty"`
}

// Option returns the option with the given id, or nil
func (p *Poll) Option(id string) *PollOption {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i]
		}
	}
	return nil
}
