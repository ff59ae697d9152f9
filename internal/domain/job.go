package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a Job row. A Job starts RUNNING (or
// COMPLETED, when it has no batches to dispatch) and, once COMPLETED, never
// reverts.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
)

// Job is the coordinator's view of one reverse-lookup batch. BatchesExpected
// is fixed at creation; BatchesCompleted and FoundCount only ever grow.
type Job struct {
	ID               uuid.UUID `gorm:"type:uuid;column:id;primaryKey" json:"id"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;default:now();index" json:"created_at"`
	Status           JobStatus `gorm:"column:status;not null;index" json:"status"`
	TotalHashes      int       `gorm:"column:total_hashes;not null;default:0" json:"total_hashes"`
	BatchesExpected  int       `gorm:"column:batches_expected;not null;default:0" json:"batches_expected"`
	BatchesCompleted int       `gorm:"column:batches_completed;not null;default:0" json:"batches_completed"`
	FoundCount       int       `gorm:"column:found_count;not null;default:0" json:"found_count"`
}

func (Job) TableName() string { return "jobs" }

// Target is one fingerprint the caller asked to resolve. The set of Target
// rows for a job is fixed at creation and never changes afterward.
type Target struct {
	JobID uuid.UUID `gorm:"type:uuid;column:job_id;primaryKey" json:"job_id"`
	Hash  string    `gorm:"column:hash_hex;type:char(32);primaryKey" json:"hash_hex"`
}

func (Target) TableName() string { return "targets" }

// Result is a discovered match. Insertion is idempotent: a worker retrying a
// unit after redelivery writes the same rows again with no effect.
type Result struct {
	JobID    uuid.UUID `gorm:"type:uuid;column:job_id;primaryKey" json:"job_id"`
	Hash     string    `gorm:"column:hash_hex;type:char(32);primaryKey" json:"hash_hex"`
	Preimage string    `gorm:"column:preimage;not null" json:"preimage"`
	FoundAt  time.Time `gorm:"column:found_at;not null;default:now()" json:"found_at"`
}

func (Result) TableName() string { return "results" }

// ProcessedBatch records that a worker's result envelope for (JobID, BatchIndex)
// has already been folded into the job's counters. Inserting a duplicate is a
// no-op (primary key conflict), which is what makes aggregation idempotent
// under the broker's at-least-once redelivery.
type ProcessedBatch struct {
	JobID      uuid.UUID `gorm:"type:uuid;column:job_id;primaryKey" json:"job_id"`
	BatchIndex int       `gorm:"column:batch_index;primaryKey" json:"batch_index"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null;default:now()" json:"processed_at"`
}

func (ProcessedBatch) TableName() string { return "processed_batches" }

// MappingEntry is one row of the precomputed, read-only fingerprint->preimage
// table. It is populated by an external offline loader; the core never writes it.
type MappingEntry struct {
	Fingerprint []byte `gorm:"column:md5_hash;type:bytea;primaryKey" json:"-"`
	PhoneNumber string `gorm:"column:phone_number;type:char(11);index" json:"phone_number"`
}

func (MappingEntry) TableName() string { return "md5_phone_map_bin" }
