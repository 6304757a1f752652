package types

import (
  "time"
  "github.com/google/uuid"
  "github.com/pgvector/pgvector-go"
  "gorm.io/datatypes"
)

// Source tables the retrieval pipeline knows how to render. Closed set;
// the indexer rejects anything else.
const (
  SourceTreatmentSummaries = "treatment_summaries"
  SourceTranscriptions     = "transcriptions"
  SourceUsers              = "users"
)

// DocumentChunk rows are disposable: every (source_table, source_id) chunk
// set is replaced as a unit when the source is (re)indexed, so no soft
// deletes here.
type DocumentChunk struct {
  ID            uuid.UUID         `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  SourceTable   string            `gorm:"not null;index:idx_chunk_source;column:source_table" json:"source_table"`
  SourceID      uuid.UUID         `gorm:"type:uuid;not null;index:idx_chunk_source;column:source_id" json:"source_id"`
  ChunkIndex    int               `gorm:"not null;column:chunk_index" json:"chunk_index"`
  DoctorID      uuid.UUID         `gorm:"type:uuid;not null;index;column:doctor_id" json:"doctor_id"`
  PatientID     *uuid.UUID        `gorm:"type:uuid;index;column:patient_id" json:"patient_id,omitempty"`
  Content       string            `gorm:"not null;column:content" json:"content"`
  Embedding     pgvector.Vector   `gorm:"type:vector(768);column:embedding" json:"-"`
  Metadata      datatypes.JSON    `gorm:"type:jsonb;column:metadata" json:"metadata"`
  CreatedAt     time.Time         `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt     time.Time         `gorm:"not null;default:now()" json:"updated_at"`
}

func (DocumentChunk) TableName() string {
  return "document_chunk"
}
