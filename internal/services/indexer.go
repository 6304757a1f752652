package services

import (
  "context"
  "encoding/json"
  "fmt"
  "sync"
  "time"

  "github.com/google/uuid"
  "github.com/pgvector/pgvector-go"
  "golang.org/x/sync/errgroup"
  "gorm.io/datatypes"
  "gorm.io/gorm"

  "github.com/medclinic/rag-server/internal/apierr"
  "github.com/medclinic/rag-server/internal/chunker"
  "github.com/medclinic/rag-server/internal/logger"
  "github.com/medclinic/rag-server/internal/repos"
  "github.com/medclinic/rag-server/internal/types"
  "github.com/medclinic/rag-server/internal/utils"
)

type IndexOptions struct {
  // DoctorID scopes patient-info indexing; required for the users source
  // because a patient record is indexed once per treating doctor.
  DoctorID *uuid.UUID
}

type ReindexSummary struct {
  Total   int      `json:"total"`
  Indexed int      `json:"indexed"`
  Failed  int      `json:"failed"`
  Chunks  int      `json:"chunks"`
  Errors  []string `json:"errors"`
}

type IndexService interface {
  Index(ctx context.Context, sourceTable string, sourceID uuid.UUID, opts IndexOptions) (int, error)
  RemoveIndex(ctx context.Context, sourceTable string, sourceID uuid.UUID, doctorID *uuid.UUID) error
  ReindexAll(ctx context.Context) (*ReindexSummary, error)
  // EnqueueIndex submits a fire-and-forget index job. The caller never
  // learns the outcome; failures are logged by the worker. Returns false
  // only when the queue is full and the job was dropped.
  EnqueueIndex(sourceTable string, sourceID uuid.UUID, opts IndexOptions) bool
  StartWorker(ctx context.Context)
}

type indexJob struct {
  sourceTable string
  sourceID    uuid.UUID
  opts        IndexOptions
}

type indexService struct {
  db  *gorm.DB
  log *logger.Logger

  summaryRepo       repos.TreatmentSummaryRepo
  transcriptionRepo repos.TranscriptionRepo
  userRepo          repos.UserRepo
  appointmentRepo   repos.AppointmentRepo
  chunkRepo         repos.DocumentChunkRepo
  ai                AIClient

  chunkSize              int
  transcriptionChunkSize int
  overlapRatio           float64
  indexTimeout           time.Duration
  reindexConcurrency     int

  jobs chan indexJob
}

func NewIndexService(
  db *gorm.DB,
  baseLog *logger.Logger,
  summaryRepo repos.TreatmentSummaryRepo,
  transcriptionRepo repos.TranscriptionRepo,
  userRepo repos.UserRepo,
  appointmentRepo repos.AppointmentRepo,
  chunkRepo repos.DocumentChunkRepo,
  ai AIClient,
) IndexService {
  log := baseLog.With("service", "IndexService")
  return &indexService{
    db:                     db,
    log:                    log,
    summaryRepo:            summaryRepo,
    transcriptionRepo:      transcriptionRepo,
    userRepo:               userRepo,
    appointmentRepo:        appointmentRepo,
    chunkRepo:              chunkRepo,
    ai:                     ai,
    chunkSize:              utils.GetEnvAsInt("RAG_CHUNK_SIZE", chunker.DefaultChunkSize, log),
    transcriptionChunkSize: utils.GetEnvAsInt("RAG_TRANSCRIPTION_CHUNK_SIZE", chunker.TranscriptionChunkSize, log),
    overlapRatio:           utils.GetEnvAsFloat("RAG_OVERLAP_RATIO", chunker.DefaultOverlapRatio, log),
    indexTimeout:           time.Duration(utils.GetEnvAsInt("RAG_INDEX_TIMEOUT_SECONDS", 30, log)) * time.Second,
    reindexConcurrency:     utils.GetEnvAsInt("RAG_REINDEX_CONCURRENCY", 4, log),
    jobs:                   make(chan indexJob, utils.GetEnvAsInt("RAG_INDEX_QUEUE_SIZE", 256, log)),
  }
}

func (is *indexService) Index(ctx context.Context, sourceTable string, sourceID uuid.UUID, opts IndexOptions) (int, error) {
  // Bound every external call (fetch + embed + store write) so the
  // fire-and-forget path cannot hang a worker on a stuck backend.
  ctx, cancel := context.WithTimeout(ctx, is.indexTimeout)
  defer cancel()

  switch sourceTable {
  case types.SourceTreatmentSummaries:
    return is.indexTreatmentSummary(ctx, sourceID)
  case types.SourceTranscriptions:
    return is.indexTranscription(ctx, sourceID)
  case types.SourceUsers:
    if opts.DoctorID == nil {
      return 0, apierr.Validation(fmt.Errorf("doctor_id is required for patient indexing"))
    }
    return is.indexPatientForDoctor(ctx, sourceID, *opts.DoctorID)
  default:
    return 0, apierr.Validation(fmt.Errorf("unknown source_table: %s", sourceTable))
  }
}

func (is *indexService) indexTreatmentSummary(ctx context.Context, summaryID uuid.UUID) (int, error) {
  summary, err := is.summaryRepo.GetByID(ctx, nil, summaryID)
  if err != nil {
    return 0, fmt.Errorf("load treatment summary: %w", err)
  }
  if summary == nil {
    return 0, apierr.NotFound(fmt.Errorf("treatment summary %s not found", summaryID))
  }

  text := renderTreatmentSummaryText(summary)
  chunks := chunker.Chunk(text, is.chunkSize, is.overlapRatio)
  if len(chunks) == 0 {
    return 0, apierr.RenderEmpty(fmt.Errorf("treatment summary %s rendered no indexable text", summaryID))
  }

  metadata := chunkMetadata{
    Type:        "treatment_summary",
    PatientName: patientDisplayName(summary.Patient),
    Date:        summary.CreatedAt.Format("2006-01-02"),
  }

  count, err := is.replaceChunks(ctx, types.SourceTreatmentSummaries, summaryID, summary.DoctorID, &summary.PatientID, nil, chunks, metadata)
  if err != nil {
    return 0, err
  }
  is.log.Info("Indexed treatment summary", "source_id", summaryID, "chunks", count)
  return count, nil
}

func (is *indexService) indexTranscription(ctx context.Context, transcriptionID uuid.UUID) (int, error) {
  transcription, err := is.transcriptionRepo.GetByID(ctx, nil, transcriptionID)
  if err != nil {
    return 0, fmt.Errorf("load transcription: %w", err)
  }
  if transcription == nil {
    return 0, apierr.NotFound(fmt.Errorf("transcription %s not found", transcriptionID))
  }

  text := renderTranscriptionText(transcription)
  // Larger chunks for transcriptions since they tend to be longer
  chunks := chunker.Chunk(text, is.transcriptionChunkSize, is.overlapRatio)
  if len(chunks) == 0 {
    return 0, apierr.RenderEmpty(fmt.Errorf("transcription %s rendered no indexable text", transcriptionID))
  }

  metadata := chunkMetadata{
    Type:        "transcription",
    PatientName: patientDisplayName(transcription.Patient),
    Date:        transcription.CreatedAt.Format("2006-01-02"),
  }

  count, err := is.replaceChunks(ctx, types.SourceTranscriptions, transcriptionID, transcription.DoctorID, &transcription.PatientID, nil, chunks, metadata)
  if err != nil {
    return 0, err
  }
  is.log.Info("Indexed transcription", "source_id", transcriptionID, "chunks", count)
  return count, nil
}

func (is *indexService) indexPatientForDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (int, error) {
  users, err := is.userRepo.GetByIDs(ctx, nil, []uuid.UUID{patientID})
  if err != nil {
    return 0, fmt.Errorf("load patient: %w", err)
  }
  if len(users) == 0 {
    return 0, apierr.NotFound(fmt.Errorf("patient %s not found", patientID))
  }
  patient := users[0]

  text := renderPatientText(patient)
  if text == "" {
    return 0, apierr.RenderEmpty(fmt.Errorf("patient %s has no indexable fields", patientID))
  }

  metadata := chunkMetadata{
    Type:        "patient_info",
    PatientName: patient.FullName,
  }

  // Patient info is one chunk per treating doctor; the replace is scoped to
  // the (source, doctor) pair so one doctor's reindex cannot clobber
  // another doctor's copy.
  count, err := is.replaceChunks(ctx, types.SourceUsers, patientID, doctorID, &patientID, &doctorID, []string{text}, metadata)
  if err != nil {
    return 0, err
  }
  is.log.Info("Indexed patient info", "source_id", patientID, "doctor_id", doctorID, "chunks", count)
  return count, nil
}

func (is *indexService) replaceChunks(
  ctx context.Context,
  sourceTable string,
  sourceID uuid.UUID,
  doctorID uuid.UUID,
  patientID *uuid.UUID,
  replaceScope *uuid.UUID,
  chunks []string,
  metadata chunkMetadata,
) (int, error) {
  embeddings, err := is.ai.Embed(ctx, chunks)
  if err != nil {
    return 0, apierr.BackendUnavailable(fmt.Errorf("embed %s/%s: %w", sourceTable, sourceID, err))
  }
  if len(embeddings) != len(chunks) {
    return 0, apierr.BackendUnavailable(fmt.Errorf("embed %s/%s: got %d vectors for %d chunks", sourceTable, sourceID, len(embeddings), len(chunks)))
  }

  metaJSON := datatypes.JSON(mustJSON(metadata))
  rows := make([]*types.DocumentChunk, 0, len(chunks))
  for i, content := range chunks {
    rows = append(rows, &types.DocumentChunk{
      ID:          uuid.New(),
      SourceTable: sourceTable,
      SourceID:    sourceID,
      ChunkIndex:  i,
      DoctorID:    doctorID,
      PatientID:   patientID,
      Content:     content,
      Embedding:   pgvector.NewVector(embeddings[i]),
      Metadata:    metaJSON,
    })
  }

  count, err := is.chunkRepo.ReplaceForSource(ctx, sourceTable, sourceID, replaceScope, rows)
  if err != nil {
    return 0, apierr.StoreWriteFailed(fmt.Errorf("replace chunks for %s/%s: %w", sourceTable, sourceID, err))
  }
  return count, nil
}

func (is *indexService) RemoveIndex(ctx context.Context, sourceTable string, sourceID uuid.UUID, doctorID *uuid.UUID) error {
  switch sourceTable {
  case types.SourceTreatmentSummaries, types.SourceTranscriptions, types.SourceUsers:
  default:
    return apierr.Validation(fmt.Errorf("unknown source_table: %s", sourceTable))
  }
  if err := is.chunkRepo.DeleteForSource(ctx, sourceTable, sourceID, doctorID); err != nil {
    return apierr.StoreWriteFailed(fmt.Errorf("delete chunks for %s/%s: %w", sourceTable, sourceID, err))
  }
  is.log.Info("Removed index for source", "source_table", sourceTable, "source_id", sourceID)
  return nil
}

type reindexTask struct {
  sourceTable string
  sourceID    uuid.UUID
  opts        IndexOptions
}

func (is *indexService) ReindexAll(ctx context.Context) (*ReindexSummary, error) {
  var tasks []reindexTask

  summaryIDs, err := is.summaryRepo.ListIDs(ctx, nil)
  if err != nil {
    return nil, fmt.Errorf("list treatment summaries: %w", err)
  }
  for _, id := range summaryIDs {
    tasks = append(tasks, reindexTask{sourceTable: types.SourceTreatmentSummaries, sourceID: id})
  }

  transcriptionIDs, err := is.transcriptionRepo.ListIDs(ctx, nil)
  if err != nil {
    return nil, fmt.Errorf("list transcriptions: %w", err)
  }
  for _, id := range transcriptionIDs {
    tasks = append(tasks, reindexTask{sourceTable: types.SourceTranscriptions, sourceID: id})
  }

  pairs, err := is.appointmentRepo.ListDoctorPatientPairs(ctx, nil)
  if err != nil {
    return nil, fmt.Errorf("list doctor/patient pairs: %w", err)
  }
  for _, p := range pairs {
    doctorID := p.DoctorID
    tasks = append(tasks, reindexTask{
      sourceTable: types.SourceUsers,
      sourceID:    p.PatientID,
      opts:        IndexOptions{DoctorID: &doctorID},
    })
  }

  summary := &ReindexSummary{Total: len(tasks), Errors: []string{}}
  var mu sync.Mutex

  g, gctx := errgroup.WithContext(ctx)
  g.SetLimit(is.reindexConcurrency)
  for _, task := range tasks {
    task := task
    g.Go(func() error {
      count, err := is.Index(gctx, task.sourceTable, task.sourceID, task.opts)
      mu.Lock()
      defer mu.Unlock()
      if err != nil {
        // One bad source must not abort the batch; record and move on.
        summary.Failed++
        summary.Errors = append(summary.Errors, fmt.Sprintf("%s/%s: %v", task.sourceTable, task.sourceID, err))
        is.log.Warn("Reindex task failed", "source_table", task.sourceTable, "source_id", task.sourceID, "error", err)
        return nil
      }
      summary.Indexed++
      summary.Chunks += count
      return nil
    })
  }
  if err := g.Wait(); err != nil {
    return summary, err
  }

  is.log.Info("Reindex complete", "total", summary.Total, "indexed", summary.Indexed, "failed", summary.Failed, "chunks", summary.Chunks)
  return summary, nil
}

func (is *indexService) EnqueueIndex(sourceTable string, sourceID uuid.UUID, opts IndexOptions) bool {
  job := indexJob{sourceTable: sourceTable, sourceID: sourceID, opts: opts}
  select {
  case is.jobs <- job:
    return true
  default:
    is.log.Warn("Index queue full, dropping job", "source_table", sourceTable, "source_id", sourceID)
    return false
  }
}

func (is *indexService) StartWorker(ctx context.Context) {
  go func() {
    for {
      select {
      case <-ctx.Done():
        return
      case job := <-is.jobs:
        // Detached from the submitting request; Index applies its own
        // timeout. Failures stay here by contract.
        if _, err := is.Index(context.Background(), job.sourceTable, job.sourceID, job.opts); err != nil {
          is.log.Warn("Async index failed", "source_table", job.sourceTable, "source_id", job.sourceID, "error", err)
        }
      }
    }
  }()
}

func mustJSON(v any) []byte {
  b, err := json.Marshal(v)
  if err != nil {
    return []byte(`{}`)
  }
  return b
}
