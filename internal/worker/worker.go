// Package worker implements the minion side of the pipeline: consuming work
// units, resolving fingerprints against the mapping table, persisting
// matches, and publishing result envelopes.
package worker

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"github.com/brightledger/hashlookup/internal/broker"
	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
	"github.com/brightledger/hashlookup/internal/platform/logger"
)

// MappingRepo is the narrow interface this package needs from
// data/repos/jobs.MappingRepo.
type MappingRepo interface {
	LookupBatch(ctx context.Context, fingerprints []string) ([]types.Match, error)
}

// ResultRepo is the narrow interface this package needs from
// data/repos/jobs.ResultRepo.
type ResultRepo interface {
	BulkCreate(dbc dbctx.Context, results []*types.Result) error
}

// Broker is the narrow slice of *broker.Broker this package needs: enough to
// subscribe to the work queue and publish the outcome back to the results
// queue.
type Broker interface {
	PublishResultEnvelope(msg types.ResultEnvelopeMessage) error
	SubscribeWorkUnits(handler broker.WorkUnitHandler) (*nats.Subscription, error)
}

// Minion processes work units per §4.3: a failure anywhere in
// ProcessWorkUnit surfaces as an error so the broker naks and redelivers the
// whole unit, keeping the step sequence all-or-nothing per delivery.
type Minion struct {
	db      *gorm.DB
	mapping MappingRepo
	results ResultRepo
	br      Broker
	log     *logger.Logger
}

func NewMinion(db *gorm.DB, mapping MappingRepo, results ResultRepo, br Broker, baseLog *logger.Logger) *Minion {
	return &Minion{db: db, mapping: mapping, results: results, br: br, log: baseLog.With("component", "Minion")}
}

// Run subscribes to the work queue and blocks until ctx is canceled.
func (m *Minion) Run(ctx context.Context) error {
	sub, err := m.br.SubscribeWorkUnits(m.ProcessWorkUnit)
	if err != nil {
		return fmt.Errorf("subscribe to work units: %w", err)
	}
	m.log.Info("minion subscribed to work queue")
	<-ctx.Done()
	return sub.Drain()
}

// ProcessWorkUnit implements §4.3 steps 1-5.
func (m *Minion) ProcessWorkUnit(unit types.WorkUnitMessage) error {
	log := m.log.With("job_id", unit.JobID, "batch_index", unit.BatchIndex)

	if len(unit.Fingerprints) == 0 {
		return m.publishEnvelope(log, unit, nil)
	}

	ctx := context.Background()
	matches, err := m.mapping.LookupBatch(ctx, unit.Fingerprints)
	if err != nil {
		return fmt.Errorf("lookup batch: %w", err)
	}

	if len(matches) > 0 {
		results := make([]*types.Result, 0, len(matches))
		for _, match := range matches {
			results = append(results, &types.Result{
				JobID:    unit.JobID,
				Hash:     match.Fingerprint,
				Preimage: match.Preimage,
			})
		}
		err := m.db.Transaction(func(txn *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: txn}
			return m.results.BulkCreate(dbc, results)
		})
		if err != nil {
			return fmt.Errorf("persist results: %w", err)
		}
	}

	log.Info("work unit resolved", "fingerprints", len(unit.Fingerprints), "matches", len(matches))
	return m.publishEnvelope(log, unit, matches)
}

func (m *Minion) publishEnvelope(log *logger.Logger, unit types.WorkUnitMessage, matches []types.Match) error {
	envelope := types.ResultEnvelopeMessage{
		Kind:       types.MessageKindResultEnvelope,
		JobID:      unit.JobID,
		BatchIndex: unit.BatchIndex,
		Matches:    matches,
	}
	if err := m.br.PublishResultEnvelope(envelope); err != nil {
		return fmt.Errorf("publish result envelope: %w", err)
	}
	return nil
}
