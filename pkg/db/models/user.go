package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/papshop-backend/pkg/enums"
)

// User mirrors the account rows owned by the auth service. The core only counts them.
type User struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email     string     `gorm:"column:email;not null"`
	Role      enums.Role `gorm:"column:role;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
