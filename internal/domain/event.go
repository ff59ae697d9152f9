package domain

import "github.com/google/uuid"

// JobEventType names the three event kinds the coordinator streams to a
// subscriber of a single job's live progress.
type JobEventType string

const (
	JobEventCreated   JobEventType = "job_created"
	JobEventProgress  JobEventType = "progress"
	JobEventCompleted JobEventType = "completed"
)

// JobEvent is the payload fanned out over both the in-process subscriber
// registry and the cross-instance event bus.
type JobEvent struct {
	JobID   uuid.UUID    `json:"job_id"`
	Type    JobEventType `json:"type"`
	Payload any          `json:"payload"`
}

// JobCreatedPayload accompanies a JobEventCreated event.
type JobCreatedPayload struct {
	TotalHashes     int `json:"total_hashes"`
	BatchesExpected int `json:"batches_expected"`
}

// JobProgressPayload accompanies a JobEventProgress event.
type JobProgressPayload struct {
	BatchesCompleted int `json:"batches_completed"`
	BatchesExpected  int `json:"batches_expected"`
	FoundCount       int `json:"found_count"`
}

// JobCompletedPayload accompanies a JobEventCompleted event.
type JobCompletedPayload struct {
	JobID uuid.UUID `json:"job_id"`
}
