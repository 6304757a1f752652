package types

import (
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

type Transcription struct {
  gorm.Model
  ID                  uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  DoctorID            uuid.UUID   `gorm:"type:uuid;not null;index" json:"doctor_id"`
  PatientID           uuid.UUID   `gorm:"type:uuid;not null;index" json:"patient_id"`
  Patient             *User       `gorm:"foreignKey:PatientID;references:ID" json:"patient,omitempty"`
  TranscriptionText   string      `gorm:"column:transcription_text" json:"transcription_text"`
  AudioFileName       string      `gorm:"column:audio_file_name" json:"audio_file_name"`
  CreatedAt           time.Time   `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt           time.Time   `gorm:"not null;default:now()" json:"updated_at"`
}

func (Transcription) TableName() string {
  return "transcriptions"
}
