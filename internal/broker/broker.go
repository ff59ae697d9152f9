// Package broker wraps the durable, load-balanced message queues the
// coordinator and minions use to hand off work units and collect result
// envelopes: a NATS JetStream stream per queue, consumed by a queue group so
// redelivery and load-balancing fall out of the broker instead of
// hand-rolled retry logic.
package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/platform/logger"
)

const (
	workStreamName    = "WORK_UNITS"
	workSubject       = "hashlookup.work_units"
	resultsStreamName = "RESULT_ENVELOPES"
	resultsSubject    = "hashlookup.result_envelopes"

	// WorkQueueGroup is the durable consumer name minions share so each work
	// unit is delivered to exactly one minion at a time.
	WorkQueueGroup = "minions"
	// ResultsQueueGroup is the durable consumer name coordinator aggregator
	// instances share so each result envelope is folded in exactly once per
	// delivery.
	ResultsQueueGroup = "aggregators"

	ackWait = 30 * time.Second
)

// Broker owns the JetStream connection and the two durable streams the
// pipeline needs.
type Broker struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *logger.Logger
}

func Connect(url string, baseLog *logger.Logger) (*Broker, error) {
	log := baseLog.With("component", "Broker")

	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("acquire jetstream context: %w", err)
	}

	b := &Broker{nc: nc, js: js, log: log}
	if err := b.ensureStreams(); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

func (b *Broker) ensureStreams() error {
	streams := []struct {
		name    string
		subject string
	}{
		{workStreamName, workSubject},
		{resultsStreamName, resultsSubject},
	}
	for _, s := range streams {
		_, err := b.js.StreamInfo(s.name)
		if err == nil {
			continue
		}
		if err != nats.ErrStreamNotFound {
			return fmt.Errorf("stream info %s: %w", s.name, err)
		}
		_, err = b.js.AddStream(&nats.StreamConfig{
			Name:      s.name,
			Subjects:  []string{s.subject},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("add stream %s: %w", s.name, err)
		}
		b.log.Info("created jetstream stream", "stream", s.name, "subject", s.subject)
	}
	return nil
}

func (b *Broker) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

// PublishWorkUnit enqueues one batch of fingerprints for a minion to resolve.
func (b *Broker) PublishWorkUnit(msg domain.WorkUnitMessage) error {
	msg.Kind = domain.MessageKindWorkUnit
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal work unit: %w", err)
	}
	if _, err := b.js.Publish(workSubject, raw); err != nil {
		return fmt.Errorf("publish work unit: %w", err)
	}
	return nil
}

// PublishResultEnvelope enqueues one batch's findings for the aggregator.
func (b *Broker) PublishResultEnvelope(msg domain.ResultEnvelopeMessage) error {
	msg.Kind = domain.MessageKindResultEnvelope
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal result envelope: %w", err)
	}
	if _, err := b.js.Publish(resultsSubject, raw); err != nil {
		return fmt.Errorf("publish result envelope: %w", err)
	}
	return nil
}

// WorkUnitHandler processes one work unit. Returning an error naks the
// delivery so JetStream redelivers it, per §4.3's at-least-once contract.
type WorkUnitHandler func(msg domain.WorkUnitMessage) error

// ResultEnvelopeHandler processes one result envelope with the same
// ack/nak-on-error contract as WorkUnitHandler.
type ResultEnvelopeHandler func(msg domain.ResultEnvelopeMessage) error

// SubscribeWorkUnits registers a minion as a member of the shared work queue
// group: JetStream load-balances deliveries across every process that calls
// this with the same group name.
func (b *Broker) SubscribeWorkUnits(handler WorkUnitHandler) (*nats.Subscription, error) {
	return b.js.QueueSubscribe(workSubject, WorkQueueGroup, func(m *nats.Msg) {
		var unit domain.WorkUnitMessage
		if err := json.Unmarshal(m.Data, &unit); err != nil {
			b.log.Error("dropping malformed work unit", "error", err)
			_ = m.Ack()
			return
		}
		if err := handler(unit); err != nil {
			b.log.Warn("work unit handler failed, nak for redelivery",
				"job_id", unit.JobID, "batch_index", unit.BatchIndex, "error", err)
			_ = m.Nak()
			return
		}
		_ = m.Ack()
	}, nats.ManualAck(), nats.AckWait(ackWait), nats.Durable(WorkQueueGroup))
}

// SubscribeResultEnvelopes registers an aggregator as a member of the shared
// results queue group.
func (b *Broker) SubscribeResultEnvelopes(handler ResultEnvelopeHandler) (*nats.Subscription, error) {
	return b.js.QueueSubscribe(resultsSubject, ResultsQueueGroup, func(m *nats.Msg) {
		var envelope domain.ResultEnvelopeMessage
		if err := json.Unmarshal(m.Data, &envelope); err != nil {
			b.log.Error("dropping malformed result envelope", "error", err)
			_ = m.Ack()
			return
		}
		if err := handler(envelope); err != nil {
			b.log.Warn("result envelope handler failed, nak for redelivery",
				"job_id", envelope.JobID, "batch_index", envelope.BatchIndex, "error", err)
			_ = m.Nak()
			return
		}
		_ = m.Ack()
	}, nats.ManualAck(), nats.AckWait(ackWait), nats.Durable(ResultsQueueGroup))
}
