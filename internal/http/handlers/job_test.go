package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	repojobs "github.com/brightledger/hashlookup/internal/data/repos/jobs"
	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
	"github.com/brightledger/hashlookup/internal/platform/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeJobRepo struct {
	byID      map[uuid.UUID]*types.Job
	completed []*types.Job
	err       error
}

func (f *fakeJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[id], nil
}

func (f *fakeJobRepo) ListCompleted(dbc dbctx.Context) ([]*types.Job, error) {
	return f.completed, f.err
}

type fakeResultRepo struct {
	rows []repojobs.ResultRow
	err  error
}

func (f *fakeResultRepo) ListForArtifact(dbc dbctx.Context, jobID uuid.UUID) ([]repojobs.ResultRow, error) {
	return f.rows, f.err
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestGetJobNotFound(t *testing.T) {
	jobs := &fakeJobRepo{byID: map[uuid.UUID]*types.Job{}}
	h := NewJobHandler(nil, jobs, &fakeResultRepo{}, nil, testLogger(t))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	id := uuid.New()
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/jobs/"+id.String(), nil)

	h.GetJob(c)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetJobFound(t *testing.T) {
	id := uuid.New()
	job := &types.Job{ID: id, Status: types.JobStatusRunning, TotalHashes: 10}
	jobs := &fakeJobRepo{byID: map[uuid.UUID]*types.Job{id: job}}
	h := NewJobHandler(nil, jobs, &fakeResultRepo{}, nil, testLogger(t))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/jobs/"+id.String(), nil)

	h.GetJob(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got types.Job
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.ID != id {
		t.Fatalf("expected job id %v, got %v", id, got.ID)
	}
}

func TestGetJobInvalidID(t *testing.T) {
	jobs := &fakeJobRepo{byID: map[uuid.UUID]*types.Job{}}
	h := NewJobHandler(nil, jobs, &fakeResultRepo{}, nil, testLogger(t))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil)

	h.GetJob(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListCompleted(t *testing.T) {
	completed := []*types.Job{
		{ID: uuid.New(), Status: types.JobStatusCompleted},
		{ID: uuid.New(), Status: types.JobStatusCompleted},
	}
	jobs := &fakeJobRepo{completed: completed}
	h := NewJobHandler(nil, jobs, &fakeResultRepo{}, nil, testLogger(t))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)

	h.ListCompleted(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []*types.Job
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(got))
	}
}

func TestArtifactWritesCSVWithNotFoundForMisses(t *testing.T) {
	id := uuid.New()
	job := &types.Job{ID: id, Status: types.JobStatusCompleted}
	jobs := &fakeJobRepo{byID: map[uuid.UUID]*types.Job{id: job}}
	found := "15555550123"
	results := &fakeResultRepo{rows: []repojobs.ResultRow{
		{Hash: "aaaa", Preimage: &found},
		{Hash: "bbbb", Preimage: nil},
	}}
	h := NewJobHandler(nil, jobs, results, nil, testLogger(t))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/jobs/"+id.String()+"/results", nil)

	h.Artifact(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "hash,phone") {
		t.Fatalf("expected CSV header, got %q", body)
	}
	if !strings.Contains(body, "aaaa,15555550123") {
		t.Fatalf("expected matched row, got %q", body)
	}
	if !strings.Contains(body, "bbbb,NOT FOUND") {
		t.Fatalf("expected NOT FOUND for unmatched row, got %q", body)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), id.String()) {
		t.Fatalf("expected job id in Content-Disposition header, got %q", w.Header().Get("Content-Disposition"))
	}
}

func TestArtifactJobNotFound(t *testing.T) {
	jobs := &fakeJobRepo{byID: map[uuid.UUID]*types.Job{}}
	h := NewJobHandler(nil, jobs, &fakeResultRepo{}, nil, testLogger(t))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	id := uuid.New()
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	c.Request = httptest.NewRequest(http.MethodGet, "/api/jobs/"+id.String()+"/results", nil)

	h.Artifact(c)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
