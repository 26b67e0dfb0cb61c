package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserModel maps the users table. Accounts are created by the auth layer;
// the donation flow only reads them.
type UserModel struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      *string   `gorm:"column:name;size:100" json:"name,omitempty"`
	Email     string    `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	Phone     *string   `gorm:"column:phone;size:30" json:"phone,omitempty"`
	Role      string    `gorm:"column:role;type:varchar(20);not null;default:user" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (UserModel) TableName() string {
	return "users"
}

func (u *UserModel) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// DisplayName falls back to the email when no name was given.
func (u *UserModel) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}

func (u *UserModel) IsAdmin() bool { return u.Role == RoleAdmin }
