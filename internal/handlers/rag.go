package handlers

import (
  "context"
  "fmt"
  "net/http"
  "time"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/medclinic/rag-server/internal/apierr"
  "github.com/medclinic/rag-server/internal/logger"
  "github.com/medclinic/rag-server/internal/requestdata"
  "github.com/medclinic/rag-server/internal/services"
)

type RAGHandler struct {
  log             *logger.Logger
  indexService    services.IndexService
  retrieveService services.RetrieveService
  reindexTimeout  time.Duration
}

func NewRAGHandler(log *logger.Logger, indexService services.IndexService, retrieveService services.RetrieveService, reindexTimeout time.Duration) *RAGHandler {
  return &RAGHandler{
    log:             log.With("handler", "RAGHandler"),
    indexService:    indexService,
    retrieveService: retrieveService,
    reindexTimeout:  reindexTimeout,
  }
}

type queryRequest struct {
  Query string `json:"query"`
  TopK  int    `json:"top_k"`
}

// POST /rag/query
// Session-authenticated; the doctor scope comes from the resolved session,
// never from the request body.
func (h *RAGHandler) Query(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.UserID == uuid.Nil {
    RespondError(c, http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("no session"))
    return
  }

  var req queryRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }

  result, err := h.retrieveService.Query(c.Request.Context(), rd.UserID, req.Query, req.TopK)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, result)
}

type indexRequest struct {
  SourceTable string  `json:"source_table"`
  SourceID    string  `json:"source_id"`
  DoctorID    *string `json:"doctor_id,omitempty"`
  // PatientID is accepted from internal callers but the source record is
  // authoritative for patient attribution; the indexer reads it there.
  PatientID   *string `json:"patient_id,omitempty"`
  Async       bool    `json:"async,omitempty"`
}

func (r *indexRequest) parse() (string, uuid.UUID, services.IndexOptions, error) {
  if r.SourceTable == "" || r.SourceID == "" {
    return "", uuid.Nil, services.IndexOptions{}, fmt.Errorf("source_table and source_id are required")
  }
  sourceID, err := uuid.Parse(r.SourceID)
  if err != nil {
    return "", uuid.Nil, services.IndexOptions{}, fmt.Errorf("invalid source_id: %w", err)
  }
  opts := services.IndexOptions{}
  if r.DoctorID != nil && *r.DoctorID != "" {
    doctorID, err := uuid.Parse(*r.DoctorID)
    if err != nil {
      return "", uuid.Nil, services.IndexOptions{}, fmt.Errorf("invalid doctor_id: %w", err)
    }
    opts.DoctorID = &doctorID
  }
  return r.SourceTable, sourceID, opts, nil
}

// POST /rag/index
// Internal-key authenticated. With "async": true the request is accepted and
// queued; the caller gets 202 and never hears about failures (fire-and-forget).
func (h *RAGHandler) Index(c *gin.Context) {
  var req indexRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }
  sourceTable, sourceID, opts, err := req.parse()
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }

  if req.Async {
    if !h.indexService.EnqueueIndex(sourceTable, sourceID, opts) {
      RespondError(c, http.StatusServiceUnavailable, apierr.CodeBackendUnavailable, fmt.Errorf("index queue full"))
      return
    }
    c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
    return
  }

  count, err := h.indexService.Index(c.Request.Context(), sourceTable, sourceID, opts)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{
    "status":         "ok",
    "chunks_created": count,
  })
}

// DELETE /rag/index
// Removes a source's chunks. The relational store does not notify this
// subsystem of deletions, so the application server calls this explicitly
// when a record is deleted.
func (h *RAGHandler) RemoveIndex(c *gin.Context) {
  var req indexRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }
  sourceTable, sourceID, opts, err := req.parse()
  if err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }
  if err := h.indexService.RemoveIndex(c.Request.Context(), sourceTable, sourceID, opts.DoctorID); err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{"status": "ok"})
}

// POST /rag/reindex-all
// Long-running: walks every eligible source record. Callers use an extended
// client timeout; the server bounds the run itself.
func (h *RAGHandler) ReindexAll(c *gin.Context) {
  ctx, cancel := context.WithTimeout(c.Request.Context(), h.reindexTimeout)
  defer cancel()

  h.log.Info("Starting full reindex")
  summary, err := h.indexService.ReindexAll(ctx)
  if err != nil {
    RespondServiceError(c, err)
    return
  }
  RespondOK(c, gin.H{
    "status": "ok",
    "stats":  summary,
  })
}
