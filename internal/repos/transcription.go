package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/medclinic/rag-server/internal/logger"
  "github.com/medclinic/rag-server/internal/types"
)

type TranscriptionRepo interface {
  GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Transcription, error)
  ListIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error)
}

type transcriptionRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewTranscriptionRepo(db *gorm.DB, baseLog *logger.Logger) TranscriptionRepo {
  repoLog := baseLog.With("repo", "TranscriptionRepo")
  return &transcriptionRepo{db: db, log: repoLog}
}

func (r *transcriptionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Transcription, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var results []*types.Transcription
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

func (r *transcriptionRepo) ListIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var ids []uuid.UUID
  if err := transaction.WithContext(ctx).
    Model(&types.Transcription{}).
    Order("created_at ASC").
    Pluck("id", &ids).Error; err != nil {
    return nil, err
  }
  return ids, nil
}
