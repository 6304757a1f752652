package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/medclinic/rag-server/internal/logger"
  "github.com/medclinic/rag-server/internal/types"
)

type DoctorPatientPair struct {
  DoctorID  uuid.UUID `gorm:"column:doctor_id"`
  PatientID uuid.UUID `gorm:"column:patient_id"`
}

type AppointmentRepo interface {
  ListDoctorPatientPairs(ctx context.Context, tx *gorm.DB) ([]DoctorPatientPair, error)
}

type appointmentRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewAppointmentRepo(db *gorm.DB, baseLog *logger.Logger) AppointmentRepo {
  repoLog := baseLog.With("repo", "AppointmentRepo")
  return &appointmentRepo{db: db, log: repoLog}
}

func (r *appointmentRepo) ListDoctorPatientPairs(ctx context.Context, tx *gorm.DB) ([]DoctorPatientPair, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var pairs []DoctorPatientPair
  if err := transaction.WithContext(ctx).
    Model(&types.Appointment{}).
    Distinct("doctor_id", "patient_id").
    Find(&pairs).Error; err != nil {
    return nil, err
  }
  return pairs, nil
}
