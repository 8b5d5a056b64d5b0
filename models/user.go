package models

import "time"

// Role flags attached to every user
type Role struct {
	IsAdmin bool `json:"is_admin"`
	IsVoter bool `json:"is_voter"`
}

// User is a registered account. Email comparison is case-sensitive.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"size:191;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"is_admin"`
	IsVoter      bool      `gorm:"not null;default:true" json:"is_voter"`
	CreatedAt    time.Time `json:"created_at"`
}

// PublicUser is the profile handed back to clients
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:    u.ID,
		Email: u.Email,
		Role:  Role{IsAdmin: u.IsAdmin, IsVoter: u.IsVoter},
	}
}

// Session is a server-side login record keyed by the SHA-256 of the bearer token
type Session struct {
	TokenHash string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"size:36;not null;index"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"not null;index"`
}
