package types

import (
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

type Appointment struct {
  gorm.Model
  ID          uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  DoctorID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"doctor_id"`
  PatientID   uuid.UUID   `gorm:"type:uuid;not null;index" json:"patient_id"`
  StartsAt    time.Time   `gorm:"not null" json:"starts_at"`
  Status      string      `gorm:"not null;default:scheduled" json:"status"`
  CreatedAt   time.Time   `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt   time.Time   `gorm:"not null;default:now()" json:"updated_at"`
}

func (Appointment) TableName() string {
  return "appointments"
}
