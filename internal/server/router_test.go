package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medclinic/rag-server/internal/handlers"
	"github.com/medclinic/rag-server/internal/logger"
	"github.com/medclinic/rag-server/internal/middleware"
	"github.com/medclinic/rag-server/internal/requestdata"
	"github.com/medclinic/rag-server/internal/services"
	"github.com/medclinic/rag-server/internal/types"
)

const testInternalKey = "internal-test-key"

type fakeAuthService struct {
	sessions map[string]*requestdata.RequestData
}

func (f *fakeAuthService) LoginUser(ctx context.Context, email, password string) (string, string, error) {
	if email == "doctor@clinic.test" && password == "correct" {
		return "access-token", "refresh-token", nil
	}
	return "", "", fmt.Errorf("invalid credentials")
}

func (f *fakeAuthService) LogoutUser(ctx context.Context) error { return nil }

func (f *fakeAuthService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	rd, ok := f.sessions[tokenString]
	if !ok {
		return ctx, fmt.Errorf("session revoked")
	}
	return requestdata.WithRequestData(ctx, rd), nil
}

type fakeIndexService struct {
	indexCount   int
	indexErr     error
	enqueueOK    bool
	enqueued     []string
	removed      []string
	reindexStats *services.ReindexSummary
}

func (f *fakeIndexService) Index(ctx context.Context, sourceTable string, sourceID uuid.UUID, opts services.IndexOptions) (int, error) {
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	return f.indexCount, nil
}

func (f *fakeIndexService) RemoveIndex(ctx context.Context, sourceTable string, sourceID uuid.UUID, doctorID *uuid.UUID) error {
	f.removed = append(f.removed, sourceTable+"/"+sourceID.String())
	return nil
}

func (f *fakeIndexService) ReindexAll(ctx context.Context) (*services.ReindexSummary, error) {
	if f.reindexStats != nil {
		return f.reindexStats, nil
	}
	return &services.ReindexSummary{Errors: []string{}}, nil
}

func (f *fakeIndexService) EnqueueIndex(sourceTable string, sourceID uuid.UUID, opts services.IndexOptions) bool {
	if !f.enqueueOK {
		return false
	}
	f.enqueued = append(f.enqueued, sourceTable+"/"+sourceID.String())
	return true
}

func (f *fakeIndexService) StartWorker(ctx context.Context) {}

type fakeRetrieveService struct {
	lastDoctorID uuid.UUID
	result       *services.QueryResult
	err          error
}

func (f *fakeRetrieveService) Query(ctx context.Context, doctorID uuid.UUID, query string, topK int) (*services.QueryResult, error) {
	f.lastDoctorID = doctorID
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &services.QueryResult{Answer: "תשובה", Sources: []services.RAGSource{}, Model: "test-model"}, nil
}

type routerFixture struct {
	router   *gin.Engine
	index    *fakeIndexService
	retrieve *fakeRetrieveService
	doctorID uuid.UUID
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)

	doctorID := uuid.New()
	auth := &fakeAuthService{sessions: map[string]*requestdata.RequestData{
		"doctor-token":  {TokenString: "doctor-token", UserID: doctorID, Role: types.RoleDoctor},
		"patient-token": {TokenString: "patient-token", UserID: uuid.New(), Role: types.RolePatient},
	}}
	index := &fakeIndexService{indexCount: 3, enqueueOK: true}
	retrieve := &fakeRetrieveService{}

	router := NewRouter(RouterConfig{
		AuthHandler:        handlers.NewAuthHandler(auth),
		RAGHandler:         handlers.NewRAGHandler(log, index, retrieve, time.Minute),
		AuthMiddleware:     middleware.NewAuthMiddleware(log, auth),
		InternalMiddleware: middleware.NewInternalMiddleware(log, testInternalKey),
		AllowOrigins:       "http://localhost:3000",
	})
	return &routerFixture{router: router, index: index, retrieve: retrieve, doctorID: doctorID}
}

func (f *routerFixture) do(t *testing.T, method, path, token, internalKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if internalKey != "" {
		req.Header.Set("X-Internal-Key", internalKey)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthcheck(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/healthcheck", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
}

func TestQueryWithoutSessionIsRejectedWithJSON(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/rag/query", "", "", map[string]any{"query": "מי המטופלים עם אסתמה?"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type: want JSON got %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("expected error message in body, got %s", rec.Body.String())
	}
}

func TestQueryWithUnknownTokenIsRejected(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/rag/query", "revoked-token", "", map[string]any{"query": "שאלה"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", rec.Code)
	}
}

func TestQueryRequiresDoctorRole(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/rag/query", "patient-token", "", map[string]any{"query": "שאלה"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: want=403 got=%d", rec.Code)
	}
}

func TestQueryScopesToSessionDoctor(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/rag/query", "doctor-token", "", map[string]any{"query": "מי המטופלים עם אסתמה?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if f.retrieve.lastDoctorID != f.doctorID {
		t.Fatalf("doctor scope: want=%s got=%s", f.doctorID, f.retrieve.lastDoctorID)
	}
	var body services.QueryResult
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Answer == "" {
		t.Fatalf("expected answer in response, got %s", rec.Body.String())
	}
}

func TestQueryAcceptsTokenQueryParam(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/rag/query?token=doctor-token", "", "", map[string]any{"query": "שאלה"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestIndexRequiresInternalKey(t *testing.T) {
	f := newRouterFixture(t)
	body := map[string]any{"source_table": types.SourceTreatmentSummaries, "source_id": uuid.New().String()}

	rec := f.do(t, http.MethodPost, "/rag/index", "", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key status: want=401 got=%d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/rag/index", "", "wrong-key", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key status: want=401 got=%d", rec.Code)
	}

	// A session token is not an internal key; the two credentials never
	// substitute for each other.
	rec = f.do(t, http.MethodPost, "/rag/index", "doctor-token", "", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("session token on internal route: want=401 got=%d", rec.Code)
	}
}

func TestIndexSyncReturnsChunkCount(t *testing.T) {
	f := newRouterFixture(t)
	body := map[string]any{"source_table": types.SourceTreatmentSummaries, "source_id": uuid.New().String()}
	rec := f.do(t, http.MethodPost, "/rag/index", "", testInternalKey, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status        string `json:"status"`
		ChunksCreated int    `json:"chunks_created"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Status != "ok" || resp.ChunksCreated != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestIndexAsyncIsAccepted(t *testing.T) {
	f := newRouterFixture(t)
	sourceID := uuid.New()
	body := map[string]any{"source_table": types.SourceTranscriptions, "source_id": sourceID.String(), "async": true}
	rec := f.do(t, http.MethodPost, "/rag/index", "", testInternalKey, body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(f.index.enqueued) != 1 || !strings.HasSuffix(f.index.enqueued[0], sourceID.String()) {
		t.Fatalf("job not enqueued: %v", f.index.enqueued)
	}
}

func TestIndexAsyncQueueFullReturns503(t *testing.T) {
	f := newRouterFixture(t)
	f.index.enqueueOK = false
	body := map[string]any{"source_table": types.SourceTranscriptions, "source_id": uuid.New().String(), "async": true}
	rec := f.do(t, http.MethodPost, "/rag/index", "", testInternalKey, body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: want=503 got=%d", rec.Code)
	}
}

func TestIndexValidationFailures(t *testing.T) {
	f := newRouterFixture(t)
	cases := []map[string]any{
		{"source_id": uuid.New().String()},
		{"source_table": types.SourceTreatmentSummaries},
		{"source_table": types.SourceTreatmentSummaries, "source_id": "not-a-uuid"},
	}
	for i, body := range cases {
		rec := f.do(t, http.MethodPost, "/rag/index", "", testInternalKey, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d status: want=400 got=%d body=%s", i, rec.Code, rec.Body.String())
		}
	}
}

func TestRemoveIndex(t *testing.T) {
	f := newRouterFixture(t)
	sourceID := uuid.New()
	body := map[string]any{"source_table": types.SourceTreatmentSummaries, "source_id": sourceID.String()}
	rec := f.do(t, http.MethodDelete, "/rag/index", "", testInternalKey, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(f.index.removed) != 1 {
		t.Fatalf("removal not delegated: %v", f.index.removed)
	}
}

func TestReindexAllReturnsStats(t *testing.T) {
	f := newRouterFixture(t)
	f.index.reindexStats = &services.ReindexSummary{Total: 5, Indexed: 4, Failed: 1, Chunks: 12, Errors: []string{"x"}}
	rec := f.do(t, http.MethodPost, "/rag/reindex-all", "", testInternalKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string                  `json:"status"`
		Stats  services.ReindexSummary `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Stats.Indexed != 4 || resp.Stats.Failed != 1 {
		t.Fatalf("stats mismatch: %+v", resp.Stats)
	}
}

func TestLogin(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/api/login", "", "", map[string]any{"email": "doctor@clinic.test", "password": "correct"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp["access_token"] == "" || resp["refresh_token"] == "" {
		t.Fatalf("missing tokens in response: %v", resp)
	}

	rec = f.do(t, http.MethodPost, "/api/login", "", "", map[string]any{"email": "doctor@clinic.test", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials status: want=401 got=%d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/login", "", "", map[string]any{"email": "doctor@clinic.test"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing password status: want=400 got=%d", rec.Code)
	}
}
