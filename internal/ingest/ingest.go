// Package ingest implements job creation: parsing an uploaded fingerprint
// file, partitioning it into work units, and durably dispatching those units
// to the broker.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
	"github.com/brightledger/hashlookup/internal/platform/logger"
	"github.com/brightledger/hashlookup/internal/realtime"
	realtimebus "github.com/brightledger/hashlookup/internal/realtime/bus"
)

const fingerprintLen = 32

// JobRepo and TargetRepo are the narrow slices of the repos package this
// service depends on, declared locally so this package doesn't import the
// concrete repo constructors.
type JobRepo interface {
	Create(dbc dbctx.Context, job *types.Job) error
}

type TargetRepo interface {
	BulkCreate(dbc dbctx.Context, targets []*types.Target) error
}

// Broker is the narrow slice of *broker.Broker this package needs: enough to
// dispatch a job's work units.
type Broker interface {
	PublishWorkUnit(msg types.WorkUnitMessage) error
}

// Service partitions uploaded fingerprint files into jobs and dispatches
// their work units.
type Service struct {
	db        *gorm.DB
	jobs      JobRepo
	targets   TargetRepo
	br        Broker
	hub       *realtime.SSEHub
	bus       realtimebus.Bus
	batchSize int
	log       *logger.Logger
}

func NewService(db *gorm.DB, jobs JobRepo, targets TargetRepo, br Broker, hub *realtime.SSEHub, bus realtimebus.Bus, batchSize int, baseLog *logger.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Service{
		db:        db,
		jobs:      jobs,
		targets:   targets,
		br:        br,
		hub:       hub,
		bus:       bus,
		batchSize: batchSize,
		log:       baseLog.With("service", "IngestService"),
	}
}

// CreateResult is the outcome of creating a job, including the §9 Open
// Question 4 diagnostic: how many uploaded lines were discarded as
// malformed.
type CreateResult struct {
	JobID        uuid.UUID
	TotalHashes  int
	DroppedLines int
}

// CreateJob implements §4.1: parse, persist, and dispatch. It returns as
// soon as the job row, target rows, and every work unit are durably
// recorded; it does not wait for any unit to be processed.
func (s *Service) CreateJob(ctx context.Context, file io.Reader) (*CreateResult, error) {
	fingerprints, dropped := parseFingerprints(file)

	jobID := uuid.New()
	total := len(fingerprints)
	batchesExpected := (total + s.batchSize - 1) / s.batchSize

	job := &types.Job{
		ID:               jobID,
		Status:           types.JobStatusRunning,
		TotalHashes:      total,
		BatchesExpected:  batchesExpected,
		BatchesCompleted: 0,
		FoundCount:       0,
	}

	// §9 Open Question 1, decided: an empty job has nothing left to
	// dispatch, so it is born complete rather than RUNNING forever.
	if batchesExpected == 0 {
		job.Status = types.JobStatusCompleted
	}

	targets := make([]*types.Target, 0, total)
	for _, fp := range fingerprints {
		targets = append(targets, &types.Target{JobID: jobID, Hash: fp})
	}

	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txn}
		if err := s.jobs.Create(dbc, job); err != nil {
			return fmt.Errorf("create job row: %w", err)
		}
		if err := s.targets.BulkCreate(dbc, targets); err != nil {
			return fmt.Errorf("bulk create targets: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitEvent(ctx, types.JobEvent{
		JobID: jobID,
		Type:  types.JobEventCreated,
		Payload: types.JobCreatedPayload{
			TotalHashes:     total,
			BatchesExpected: batchesExpected,
		},
	})

	if job.Status == types.JobStatusCompleted {
		s.emitEvent(ctx, types.JobEvent{
			JobID:   jobID,
			Type:    types.JobEventCompleted,
			Payload: types.JobCompletedPayload{JobID: jobID},
		})
		return &CreateResult{JobID: jobID, TotalHashes: total, DroppedLines: dropped}, nil
	}

	for i := 0; i < batchesExpected; i++ {
		start := i * s.batchSize
		end := start + s.batchSize
		if end > total {
			end = total
		}
		unit := types.WorkUnitMessage{
			Kind:         types.MessageKindWorkUnit,
			JobID:        jobID,
			BatchIndex:   i,
			Fingerprints: fingerprints[start:end],
		}
		if err := s.br.PublishWorkUnit(unit); err != nil {
			// Per §4.1 step 6/7 and §7: the job row is already committed, so a
			// publish failure here strands the job rather than rolling it
			// back. No automatic compensation is attempted.
			s.log.Error("failed to publish work unit; job may be stranded",
				"job_id", jobID, "batch_index", i, "error", err)
			return &CreateResult{JobID: jobID, TotalHashes: total, DroppedLines: dropped}, fmt.Errorf("publish work unit %d: %w", i, err)
		}
	}

	return &CreateResult{JobID: jobID, TotalHashes: total, DroppedLines: dropped}, nil
}

func (s *Service) emitEvent(ctx context.Context, evt types.JobEvent) {
	s.hub.Broadcast(realtime.SSEMessage{
		Channel: evt.JobID.String(),
		Event:   realtime.SSEEvent(evt.Type),
		Data:    evt.Payload,
	})
	if s.bus != nil {
		if err := s.bus.Publish(ctx, evt); err != nil {
			s.log.Warn("failed to publish job event to bus", "job_id", evt.JobID, "error", err)
		}
	}
}

// parseFingerprints admits only lines that are exactly 32 hex characters
// after trimming whitespace, per §4.1 step 2. Everything else is counted as
// dropped and otherwise ignored, with no per-line diagnostic.
func parseFingerprints(r io.Reader) ([]string, int) {
	var fingerprints []string
	dropped := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if isFingerprint(line) {
			fingerprints = append(fingerprints, strings.ToLower(line))
		} else {
			dropped++
		}
	}
	return fingerprints, dropped
}

func isFingerprint(s string) bool {
	if len(s) != fingerprintLen {
		return false
	}
	for _, r := range s {
		if !isHexDigit(r) {
			return false
		}
	}
	return true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
