package types

import (
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

type TreatmentSummary struct {
  gorm.Model
  ID                 uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  DoctorID           uuid.UUID   `gorm:"type:uuid;not null;index" json:"doctor_id"`
  PatientID          uuid.UUID   `gorm:"type:uuid;not null;index" json:"patient_id"`
  Patient            *User       `gorm:"foreignKey:PatientID;references:ID" json:"patient,omitempty"`
  Diagnosis          string      `gorm:"column:diagnosis" json:"diagnosis"`
  TreatmentNotes     string      `gorm:"column:treatment_notes" json:"treatment_notes"`
  Prescription       string      `gorm:"column:prescription" json:"prescription"`
  FollowUpRequired   bool        `gorm:"not null;default:false;column:follow_up_required" json:"follow_up_required"`
  FollowUpDate       *time.Time  `gorm:"column:follow_up_date" json:"follow_up_date,omitempty"`
  CreatedAt          time.Time   `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt          time.Time   `gorm:"not null;default:now()" json:"updated_at"`
}

func (TreatmentSummary) TableName() string {
  return "treatment_summaries"
}
