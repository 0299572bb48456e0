package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account that owns meals. The password column only ever holds a bcrypt hash.
type User struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	Name             string     `gorm:"size:255;not null" json:"name"`
	Email            string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password         string     `gorm:"size:255;not null" json:"-"`
	VerificationCode *string    `gorm:"size:6" json:"-"`
	CodeExpiresAt    *time.Time `json:"-"`
	EmailVerified    bool       `gorm:"not null;default:false" json:"emailVerified"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	Meals []Meal `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns a random UUID when none was set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// UserResponse is the public shape of a user. It has no password field.
type UserResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     Timestamp `json:"createdAt"`
	UpdatedAt     Timestamp `json:"updatedAt"`
}

// ToResponse projects the user onto its public shape.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		CreatedAt:     Timestamp(u.CreatedAt),
		UpdatedAt:     Timestamp(u.UpdatedAt),
	}
}

// UsersToResponse projects a slice of users.
func UsersToResponse(users []User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToResponse())
	}
	return out
}

// CachedUser is the cache representation of a user used by the session gate.
// It carries only what identity resolution needs.
type CachedUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}
