package types

import (
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

const (
  RoleDoctor  = "doctor"
  RolePatient = "patient"
  RoleAdmin   = "admin"
)

type User struct {
  gorm.Model
  ID          uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  Email       string      `gorm:"uniqueIndex;not null;column:email" json:"email"`
  Password    string      `gorm:"not null;column:password" json:"-"`
  FullName    string      `gorm:"not null;column:full_name" json:"full_name"`
  Role        string      `gorm:"not null;default:patient;column:role" json:"role"`
  Phone       string      `gorm:"column:phone" json:"phone"`
  CreatedAt   time.Time   `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt   time.Time   `gorm:"not null;default:now()" json:"updated_at"`
}

func (User) TableName() string {
  return "users"
}
