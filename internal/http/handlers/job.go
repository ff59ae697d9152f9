package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/http/response"
	"github.com/brightledger/hashlookup/internal/ingest"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
	"github.com/brightledger/hashlookup/internal/platform/logger"
	"github.com/brightledger/hashlookup/internal/realtime"
	repojobs "github.com/brightledger/hashlookup/internal/data/repos/jobs"
)

// JobRepo is the narrow interface JobHandler needs from
// data/repos/jobs.JobRepo.
type JobRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error)
	ListCompleted(dbc dbctx.Context) ([]*types.Job, error)
}

// ResultRepo is the narrow interface JobHandler needs from
// data/repos/jobs.ResultRepo.
type ResultRepo interface {
	ListForArtifact(dbc dbctx.Context, jobID uuid.UUID) ([]repojobs.ResultRow, error)
}

type JobHandler struct {
	ingest  *ingest.Service
	jobs    JobRepo
	results ResultRepo
	hub     *realtime.SSEHub
	log     *logger.Logger
}

func NewJobHandler(ingestSvc *ingest.Service, jobs JobRepo, results ResultRepo, hub *realtime.SSEHub, baseLog *logger.Logger) *JobHandler {
	return &JobHandler{ingest: ingestSvc, jobs: jobs, results: results, hub: hub, log: baseLog.With("handler", "JobHandler")}
}

// CreateJob handles POST /api/jobs per §6: multipart upload, field "file".
func (h *JobHandler) CreateJob(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_file", fmt.Errorf("field \"file\" is required: %w", err))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()

	result, err := h.ingest.CreateJob(c.Request.Context(), f)
	if err != nil {
		if result != nil {
			// The job row and targets were durably committed even though
			// dispatch failed partway through; report 202 with the jobId so
			// the caller can still poll status, per §4.1's stranding note.
			h.log.Error("job created but dispatch incomplete", "job_id", result.JobID, "error", err)
			c.JSON(http.StatusAccepted, gin.H{"jobId": result.JobID, "droppedLines": result.DroppedLines})
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "ingest_failed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": result.JobID, "droppedLines": result.DroppedLines})
}

// ListCompleted handles GET /api/jobs per §4.6/§6.
func (h *JobHandler) ListCompleted(c *gin.Context) {
	jobs, err := h.jobs.ListCompleted(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	response.RespondOK(c, jobs)
}

// GetJob handles GET /api/jobs/{jobId} per §4.6/§6.
func (h *JobHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job %s not found", id))
		return
	}
	response.RespondOK(c, job)
}

// Events handles GET /api/jobs/{jobId}/events: a server-push stream that
// replaces any prior subscriber for the same jobId, per §4.5.
func (h *JobHandler) Events(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job %s not found", id))
		return
	}

	client := h.hub.NewSSEClient(uuid.Nil)
	h.hub.AddChannel(client, id.String())
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

// Artifact handles GET /api/jobs/{jobId}/results per §4.6: a freshly
// generated CSV snapshot, partial if the job hasn't completed yet.
func (h *JobHandler) Artifact(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job %s not found", id))
		return
	}

	rows, err := h.results.ListForArtifact(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "artifact_query_failed", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-results.csv"`, id))
	c.Header("Content-Type", "text/plain; charset=utf-8")

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"hash", "phone"}); err != nil {
		h.log.Error("failed writing CSV header", "job_id", id, "error", err)
		return
	}
	for _, row := range rows {
		preimage := "NOT FOUND"
		if row.Preimage != nil {
			preimage = *row.Preimage
		}
		if err := w.Write([]string{row.Hash, preimage}); err != nil {
			h.log.Error("failed writing CSV row", "job_id", id, "error", err)
			return
		}
	}
	w.Flush()
}
