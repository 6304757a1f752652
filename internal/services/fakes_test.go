package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/medclinic/rag-server/internal/logger"
	"github.com/medclinic/rag-server/internal/repos"
	"github.com/medclinic/rag-server/internal/types"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

type fakeAIClient struct {
	mu          sync.Mutex
	embedErr    error
	generateErr error
	answer      string
	embedCalls  int
	lastInputs  []string
	lastUser    string
}

func (f *fakeAIClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	f.lastInputs = inputs
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = []float32{float32(len(in)), float32(i), 1}
	}
	return out, nil
}

func (f *fakeAIClient) GenerateAnswer(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUser = user
	if f.generateErr != nil {
		return "", f.generateErr
	}
	if f.answer != "" {
		return f.answer, nil
	}
	return "תשובה לדוגמה", nil
}

func (f *fakeAIClient) Model() string      { return "test-model" }
func (f *fakeAIClient) EmbedModel() string { return "test-embed" }

// fakeChunkStore is an in-memory DocumentChunkRepo with the same
// replace-as-a-unit semantics as the Postgres implementation.
type fakeChunkStore struct {
	mu         sync.Mutex
	rows       []*types.DocumentChunk
	replaceErr error
	searchErr  error
}

func (f *fakeChunkStore) ReplaceForSource(ctx context.Context, sourceTable string, sourceID uuid.UUID, doctorID *uuid.UUID, chunks []*types.DocumentChunk) (int, error) {
	if f.replaceErr != nil {
		return 0, f.replaceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, row := range f.rows {
		match := row.SourceTable == sourceTable && row.SourceID == sourceID
		if match && doctorID != nil {
			match = row.DoctorID == *doctorID
		}
		if !match {
			kept = append(kept, row)
		}
	}
	f.rows = append(kept, chunks...)
	return len(chunks), nil
}

func (f *fakeChunkStore) DeleteForSource(ctx context.Context, sourceTable string, sourceID uuid.UUID, doctorID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, row := range f.rows {
		match := row.SourceTable == sourceTable && row.SourceID == sourceID
		if match && doctorID != nil {
			match = row.DoctorID == *doctorID
		}
		if !match {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

func (f *fakeChunkStore) SearchSimilar(ctx context.Context, tx *gorm.DB, query pgvector.Vector, doctorID uuid.UUID, topK int, minSimilarity float64) ([]repos.SimilarChunk, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repos.SimilarChunk
	for _, row := range f.rows {
		if row.DoctorID != doctorID {
			continue
		}
		out = append(out, repos.SimilarChunk{DocumentChunk: *row, Similarity: 0.9})
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func (f *fakeChunkStore) CountForSource(ctx context.Context, tx *gorm.DB, sourceTable string, sourceID uuid.UUID) (int64, error) {
	return int64(len(f.chunksFor(sourceTable, sourceID))), nil
}

func (f *fakeChunkStore) chunksFor(sourceTable string, sourceID uuid.UUID) []*types.DocumentChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.DocumentChunk
	for _, row := range f.rows {
		if row.SourceTable == sourceTable && row.SourceID == sourceID {
			out = append(out, row)
		}
	}
	return out
}

type fakeSummaryRepo struct {
	byID map[uuid.UUID]*types.TreatmentSummary
	err  error
}

func (f *fakeSummaryRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.TreatmentSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[id], nil
}

func (f *fakeSummaryRepo) ListIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error) {
	if f.err != nil {
		return nil, f.err
	}
	var ids []uuid.UUID
	for id := range f.byID {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeTranscriptionRepo struct {
	byID map[uuid.UUID]*types.Transcription
}

func (f *fakeTranscriptionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Transcription, error) {
	return f.byID[id], nil
}

func (f *fakeTranscriptionRepo) ListIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range f.byID {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeUserRepo struct {
	byID    map[uuid.UUID]*types.User
	byEmail map[string]*types.User
}

func (f *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
	return nil, fmt.Errorf("not supported in fake")
}

func (f *fakeUserRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.User, error) {
	var out []*types.User
	for _, id := range ids {
		if u, ok := f.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*types.User, error) {
	var out []*types.User
	for _, email := range emails {
		if u, ok := f.byEmail[email]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeAppointmentRepo struct {
	pairs []repos.DoctorPatientPair
}

func (f *fakeAppointmentRepo) ListDoctorPatientPairs(ctx context.Context, tx *gorm.DB) ([]repos.DoctorPatientPair, error) {
	return f.pairs, nil
}

type fakeUserTokenRepo struct {
	mu     sync.Mutex
	tokens []*types.UserToken
}

func (f *fakeUserTokenRepo) Create(ctx context.Context, tx *gorm.DB, tokens []*types.UserToken) ([]*types.UserToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, tokens...)
	return tokens, nil
}

func (f *fakeUserTokenRepo) GetByAccessTokens(ctx context.Context, tx *gorm.DB, accessTokens []string) ([]*types.UserToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.UserToken
	for _, t := range f.tokens {
		for _, at := range accessTokens {
			if t.AccessToken == at {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (f *fakeUserTokenRepo) FullDeleteByTokens(ctx context.Context, tx *gorm.DB, tokens []*types.UserToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.tokens[:0]
	for _, t := range f.tokens {
		drop := false
		for _, del := range tokens {
			if del != nil && t.ID == del.ID {
				drop = true
			}
		}
		if !drop {
			kept = append(kept, t)
		}
	}
	f.tokens = kept
	return nil
}
