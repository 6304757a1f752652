package repos

import (
  "context"
  "github.com/google/uuid"
  "github.com/pgvector/pgvector-go"
  "gorm.io/gorm"
  "github.com/medclinic/rag-server/internal/logger"
  "github.com/medclinic/rag-server/internal/types"
)

// SimilarChunk is a chunk row joined with its cosine similarity to the query
// vector. The embedding itself is not selected back; retrieval only needs
// the content and citation metadata.
type SimilarChunk struct {
  types.DocumentChunk
  Similarity float64 `gorm:"column:similarity" json:"similarity"`
}

type DocumentChunkRepo interface {
  // ReplaceForSource swaps the full chunk set of one source inside a single
  // transaction, so concurrent readers see either the old generation or the
  // new one, never a mixture. A non-nil doctorID narrows the replaced set to
  // that doctor's chunks (used for per-doctor patient-info sources).
  ReplaceForSource(ctx context.Context, sourceTable string, sourceID uuid.UUID, doctorID *uuid.UUID, chunks []*types.DocumentChunk) (int, error)
  DeleteForSource(ctx context.Context, sourceTable string, sourceID uuid.UUID, doctorID *uuid.UUID) error
  SearchSimilar(ctx context.Context, tx *gorm.DB, query pgvector.Vector, doctorID uuid.UUID, topK int, minSimilarity float64) ([]SimilarChunk, error)
  CountForSource(ctx context.Context, tx *gorm.DB, sourceTable string, sourceID uuid.UUID) (int64, error)
}

type documentChunkRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
  repoLog := baseLog.With("repo", "DocumentChunkRepo")
  return &documentChunkRepo{db: db, log: repoLog}
}

func (r *documentChunkRepo) ReplaceForSource(ctx context.Context, sourceTable string, sourceID uuid.UUID, doctorID *uuid.UUID, chunks []*types.DocumentChunk) (int, error) {
  // Keep batches small because Content is large
  const batchSize = 100

  err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    del := tx.Where("source_table = ? AND source_id = ?", sourceTable, sourceID)
    if doctorID != nil {
      del = del.Where("doctor_id = ?", *doctorID)
    }
    if err := del.Delete(&types.DocumentChunk{}).Error; err != nil {
      return err
    }
    if len(chunks) == 0 {
      return nil
    }
    return tx.CreateInBatches(chunks, batchSize).Error
  })
  if err != nil {
    return 0, err
  }
  return len(chunks), nil
}

func (r *documentChunkRepo) DeleteForSource(ctx context.Context, sourceTable string, sourceID uuid.UUID, doctorID *uuid.UUID) error {
  del := r.db.WithContext(ctx).Where("source_table = ? AND source_id = ?", sourceTable, sourceID)
  if doctorID != nil {
    del = del.Where("doctor_id = ?", *doctorID)
  }
  return del.Delete(&types.DocumentChunk{}).Error
}

func (r *documentChunkRepo) SearchSimilar(ctx context.Context, tx *gorm.DB, query pgvector.Vector, doctorID uuid.UUID, topK int, minSimilarity float64) ([]SimilarChunk, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  if topK <= 0 {
    topK = 10
  }
  var results []SimilarChunk
  // The doctor_id predicate is the isolation boundary; it is part of the
  // query itself, not something callers may skip.
  if err := transaction.WithContext(ctx).Raw(`
    SELECT id, source_table, source_id, chunk_index, doctor_id, patient_id,
           content, metadata, created_at, updated_at,
           1 - (embedding <=> ?) AS similarity
    FROM document_chunk
    WHERE doctor_id = ?
      AND 1 - (embedding <=> ?) >= ?
    ORDER BY embedding <=> ?
    LIMIT ?
  `, query, doctorID, query, minSimilarity, query, topK).
    Scan(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *documentChunkRepo) CountForSource(ctx context.Context, tx *gorm.DB, sourceTable string, sourceID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }
  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.DocumentChunk{}).
    Where("source_table = ? AND source_id = ?", sourceTable, sourceID).
    Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}
