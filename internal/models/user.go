package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the closed set of caller roles.
type Role string

const (
	RoleCitizen Role = "CITIZEN"
	RoleOfficer Role = "OFFICER"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole accepts a role name in any letter case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleCitizen, RoleOfficer, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// User is the local contact record for an identity issued elsewhere.
// Only delivery preferences are kept here.
type User struct {
	ID             string `gorm:"primaryKey" json:"id"`
	Role           Role   `gorm:"type:text;not null" json:"role"`
	DisplayName    string `gorm:"type:text" json:"displayName,omitempty"`
	TelegramChatID *int64 `gorm:"uniqueIndex" json:"telegramChatId,omitempty"`
	Language       string `gorm:"type:text;default:'en'" json:"language,omitempty"`
}

// BeforeCreate — це хук GORM, який викликається перед створенням запису.
// Він генерує новий UUID для користувача, якщо ID ще не встановлено.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}
