// Package aggregator implements the coordinator-side consumption of result
// envelopes: folding each envelope's matches into the owning job's counters
// and fanning the resulting state transition out to live subscribers.
package aggregator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/brightledger/hashlookup/internal/broker"
	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
	"github.com/brightledger/hashlookup/internal/platform/logger"
	"github.com/brightledger/hashlookup/internal/realtime"
	realtimebus "github.com/brightledger/hashlookup/internal/realtime/bus"
)

// JobRepo is the narrow interface this package needs from
// data/repos/jobs.JobRepo.
type JobRepo interface {
	AdvanceIfNotProcessed(dbc dbctx.Context, jobID uuid.UUID, batchIndex int, matchCount int) (job *types.Job, applied bool, err error)
}

// Aggregator consumes ResultEnvelopes and advances job state per §4.4.
type Aggregator struct {
	jobs JobRepo
	br   *broker.Broker
	hub  *realtime.SSEHub
	bus  realtimebus.Bus
	log  *logger.Logger
}

func New(jobs JobRepo, br *broker.Broker, hub *realtime.SSEHub, bus realtimebus.Bus, baseLog *logger.Logger) *Aggregator {
	return &Aggregator{jobs: jobs, br: br, hub: hub, bus: bus, log: baseLog.With("component", "Aggregator")}
}

// Run subscribes to the results queue and blocks until ctx is canceled.
func (a *Aggregator) Run(ctx context.Context) error {
	sub, err := a.br.SubscribeResultEnvelopes(func(env types.ResultEnvelopeMessage) error {
		return a.ProcessEnvelope(ctx, env)
	})
	if err != nil {
		return fmt.Errorf("subscribe to result envelopes: %w", err)
	}
	a.log.Info("aggregator subscribed to results queue")
	<-ctx.Done()
	return sub.Drain()
}

// ProcessEnvelope implements §4.4. It never returns an error for a missing
// job (step 1: silently drop) so the broker acks rather than redelivering a
// message that can never succeed.
func (a *Aggregator) ProcessEnvelope(ctx context.Context, env types.ResultEnvelopeMessage) error {
	dbc := dbctx.Context{Ctx: ctx}
	job, applied, err := a.jobs.AdvanceIfNotProcessed(dbc, env.JobID, env.BatchIndex, len(env.Matches))
	if err != nil {
		return fmt.Errorf("advance job state: %w", err)
	}
	if job == nil {
		a.log.Warn("dropping result envelope for unknown job", "job_id", env.JobID, "batch_index", env.BatchIndex)
		return nil
	}
	if !applied {
		a.log.Debug("ignoring already-processed batch", "job_id", env.JobID, "batch_index", env.BatchIndex)
		return nil
	}

	a.emit(ctx, types.JobEvent{
		JobID: job.ID,
		Type:  types.JobEventProgress,
		Payload: types.JobProgressPayload{
			BatchesCompleted: job.BatchesCompleted,
			BatchesExpected:  job.BatchesExpected,
			FoundCount:       job.FoundCount,
		},
	})

	if job.Status == types.JobStatusCompleted {
		a.emit(ctx, types.JobEvent{
			JobID:   job.ID,
			Type:    types.JobEventCompleted,
			Payload: types.JobCompletedPayload{JobID: job.ID},
		})
		if client, ok := a.hub.Lookup(job.ID.String()); ok {
			a.hub.CloseClient(client)
		}
	}
	return nil
}

func (a *Aggregator) emit(ctx context.Context, evt types.JobEvent) {
	a.hub.Broadcast(realtime.SSEMessage{
		Channel: evt.JobID.String(),
		Event:   realtime.SSEEvent(evt.Type),
		Data:    evt.Payload,
	})
	if a.bus != nil {
		if err := a.bus.Publish(ctx, evt); err != nil {
			a.log.Warn("failed to publish job event to bus", "job_id", evt.JobID, "error", err)
		}
	}
}
