package services

import (
  "context"
  "encoding/json"
  "fmt"
  "strings"
  "time"

  "github.com/google/uuid"
  "github.com/pgvector/pgvector-go"
  "gorm.io/gorm"

  "github.com/medclinic/rag-server/internal/apierr"
  "github.com/medclinic/rag-server/internal/logger"
  "github.com/medclinic/rag-server/internal/repos"
  "github.com/medclinic/rag-server/internal/utils"
)

type RAGSource struct {
  PatientName string `json:"patient_name"`
  Date        string `json:"date"`
}

type QueryResult struct {
  Answer  string      `json:"answer"`
  Sources []RAGSource `json:"sources"`
  Scanned int         `json:"total_summaries_scanned"`
  Model   string      `json:"model"`
}

type RetrieveService interface {
  // Query answers a free-text question from the calling doctor's indexed
  // records only. doctorID is the resolved session identity, never caller
  // input; there is no unscoped variant.
  Query(ctx context.Context, doctorID uuid.UUID, query string, topK int) (*QueryResult, error)
}

type retrieveService struct {
  db  *gorm.DB
  log *logger.Logger

  chunkRepo repos.DocumentChunkRepo
  ai        AIClient
  cache     EmbedCache

  defaultTopK   int
  minSimilarity float64
  queryTimeout  time.Duration
}

func NewRetrieveService(
  db *gorm.DB,
  baseLog *logger.Logger,
  chunkRepo repos.DocumentChunkRepo,
  ai AIClient,
  cache EmbedCache,
) RetrieveService {
  log := baseLog.With("service", "RetrieveService")
  return &retrieveService{
    db:            db,
    log:           log,
    chunkRepo:     chunkRepo,
    ai:            ai,
    cache:         cache,
    defaultTopK:   utils.GetEnvAsInt("RAG_TOP_K", 10, log),
    minSimilarity: utils.GetEnvAsFloat("RAG_MIN_SIMILARITY", 0.3, log),
    queryTimeout:  time.Duration(utils.GetEnvAsInt("RAG_QUERY_TIMEOUT_SECONDS", 30, log)) * time.Second,
  }
}

const answerSystemPrompt = `אתה עוזר רפואי חכם. ענה על שאלת הרופא בהתבסס אך ורק על המידע הרפואי שסופק לך.

חוקים:
1. ענה רק בעברית
2. התבסס רק על המידע שסופק
3. אם אין מידע - אמר זאת
4. ציין שמות מטופלים ותאריכים רלוונטיים
5. תשובה קצרה ומדויקת (2-4 משפטים)`

const noResultsAnswer = "לא נמצא מידע רלוונטי. יש ליצור סיכומי טיפול או תמלולים לפני שניתן לחפש בהם."

func (rs *retrieveService) Query(ctx context.Context, doctorID uuid.UUID, query string, topK int) (*QueryResult, error) {
  query = strings.TrimSpace(query)
  if query == "" {
    return nil, apierr.Validation(fmt.Errorf("query must not be empty"))
  }
  if doctorID == uuid.Nil {
    return nil, apierr.Validation(fmt.Errorf("doctor scope missing"))
  }
  if topK <= 0 {
    topK = rs.defaultTopK
  }

  ctx, cancel := context.WithTimeout(ctx, rs.queryTimeout)
  defer cancel()

  queryVec, err := rs.embedQuery(ctx, query)
  if err != nil {
    return nil, apierr.BackendUnavailable(fmt.Errorf("embed query: %w", err))
  }

  matches, err := rs.chunkRepo.SearchSimilar(ctx, nil, pgvector.NewVector(queryVec), doctorID, topK, rs.minSimilarity)
  if err != nil {
    return nil, apierr.BackendUnavailable(fmt.Errorf("similarity search: %w", err))
  }

  if len(matches) == 0 {
    // Valid outcome, distinct from a backend failure: the doctor simply
    // has nothing indexed that matches.
    return &QueryResult{
      Answer:  noResultsAnswer,
      Sources: []RAGSource{},
      Scanned: 0,
      Model:   rs.ai.Model(),
    }, nil
  }

  contextText, sources := buildContextFromChunks(matches)

  userPrompt := fmt.Sprintf("%s\n\nשאלת הרופא: %s\n\nתשובה:", contextText, query)
  answer, err := rs.ai.GenerateAnswer(ctx, answerSystemPrompt, userPrompt)
  if err != nil {
    return nil, apierr.BackendUnavailable(fmt.Errorf("generate answer: %w", err))
  }

  rs.log.Info("Answered retrieval query", "doctor_id", doctorID, "scanned", len(matches), "sources", len(sources))

  return &QueryResult{
    Answer:  answer,
    Sources: sources,
    Scanned: len(matches),
    Model:   rs.ai.Model(),
  }, nil
}

func (rs *retrieveService) embedQuery(ctx context.Context, query string) ([]float32, error) {
  if rs.cache != nil {
    if vec, ok := rs.cache.Get(ctx, rs.ai.EmbedModel(), query); ok {
      return vec, nil
    }
  }
  vecs, err := rs.ai.Embed(ctx, []string{query})
  if err != nil {
    return nil, err
  }
  if len(vecs) != 1 {
    return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vecs))
  }
  if rs.cache != nil {
    rs.cache.Set(ctx, rs.ai.EmbedModel(), query, vecs[0])
  }
  return vecs[0], nil
}

var chunkTypeLabels = map[string]string{
  "treatment_summary": "סיכום טיפול",
  "transcription":     "תמלול",
  "patient_info":      "פרטי מטופל",
}

// buildContextFromChunks renders the retrieved chunks into the prompt
// context and collapses their provenance into one citation per source
// record (a long note retrieved as three chunks is still one source).
func buildContextFromChunks(matches []repos.SimilarChunk) (string, []RAGSource) {
  var contextParts []string
  var sources []RAGSource
  seenSources := map[string]bool{}

  for i, match := range matches {
    var meta chunkMetadata
    if len(match.Metadata) > 0 {
      _ = json.Unmarshal(match.Metadata, &meta)
    }
    patientName := meta.PatientName
    if patientName == "" {
      patientName = unknownPatientLabel
    }

    typeLabel, ok := chunkTypeLabels[meta.Type]
    if !ok {
      typeLabel = "מסמך"
    }

    contextParts = append(contextParts, fmt.Sprintf(
      "--- %s #%d (רלוונטיות: %.2f) ---\nמטופל: %s\nתאריך: %s\n%s\n",
      typeLabel, i+1, match.Similarity, patientName, meta.Date, match.Content,
    ))

    sourceKey := match.SourceTable + "/" + match.SourceID.String()
    if !seenSources[sourceKey] {
      seenSources[sourceKey] = true
      sources = append(sources, RAGSource{PatientName: patientName, Date: meta.Date})
    }
  }

  return strings.Join(contextParts, "\n"), sources
}
