package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/medclinic/rag-server/internal/logger"
  "github.com/medclinic/rag-server/internal/types"
)

type TreatmentSummaryRepo interface {
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TreatmentSummary, error)
  ListIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error)
}

type treatmentSummaryRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewTreatmentSummaryRepo(db *gorm.DB, baseLog *logger.Logger) TreatmentSummaryRepo {
  repoLog := baseLog.With("repo", "TreatmentSummaryRepo")
  return &treatmentSummaryRepo{db: db, log: repoLog}
}

func (r *treatmentSummaryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TreatmentSummary, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.TreatmentSummary
  if err := transaction.WithContext(ctx).
    Preload("Patient").
    Where("id = ?", id).
    Limit(1).
    Find(&results).Error; err != nil {
    return nil, err
  }
  if len(results) == 0 {
    return nil, nil
  }
  return results[0], nil
}

func (r *treatmentSummaryRepo) ListIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var ids []uuid.UUID
  if err := transaction.WithContext(ctx).
    Model(&types.TreatmentSummary{}).
    Order("created_at ASC").
    Pluck("id", &ids).Error; err != nil {
    return nil, err
  }
  return ids, nil
}
