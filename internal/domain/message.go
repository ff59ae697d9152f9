package domain

import "github.com/google/uuid"

// MessageKind tags the schema of a broker envelope so that consumers can
// evolve the wire format without breaking older publishers or subscribers.
type MessageKind string

const (
	MessageKindWorkUnit       MessageKind = "work_unit.v1"
	MessageKindResultEnvelope MessageKind = "result_envelope.v1"
)

// WorkUnitMessage is published to the work queue: one ordered slice of at
// most B fingerprints belonging to a single job.
type WorkUnitMessage struct {
	Kind        MessageKind `json:"kind"`
	JobID       uuid.UUID   `json:"job_id"`
	BatchIndex  int         `json:"batch_index"`
	Fingerprints []string   `json:"fingerprints"`
}

// Match is one (fingerprint, preimage) pair discovered while processing a
// work unit.
type Match struct {
	Fingerprint string `json:"fingerprint"`
	Preimage    string `json:"preimage"`
}

// ResultEnvelopeMessage is published to the results queue by a worker after
// it has fully processed a WorkUnitMessage. It is keyed by (JobID, BatchIndex)
// so the coordinator's aggregator can de-duplicate redelivered envelopes.
type ResultEnvelopeMessage struct {
	Kind       MessageKind `json:"kind"`
	JobID      uuid.UUID   `json:"job_id"`
	BatchIndex int         `json:"batch_index"`
	Matches    []Match     `json:"matches"`
}
