package types

import (
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

type UserToken struct {
  gorm.Model
  ID             uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID         uuid.UUID   `gorm:"type:uuid;not null;index" json:"user_id"`
  AccessToken    string      `gorm:"not null;index;column:access_token" json:"-"`
  RefreshToken   string      `gorm:"not null;index;column:refresh_token" json:"-"`
  ExpiresAt      time.Time   `gorm:"not null" json:"expires_at"`
  CreatedAt      time.Time   `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt      time.Time   `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserToken) TableName() string {
  return "user_token"
}
