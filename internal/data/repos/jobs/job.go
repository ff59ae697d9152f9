package jobs

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
	"github.com/brightledger/hashlookup/internal/platform/logger"
)

type JobRepo interface {
	Create(dbc dbctx.Context, job *types.Job) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error)
	ListCompleted(dbc dbctx.Context) ([]*types.Job, error)
	// AdvanceIfNotProcessed applies the aggregator's read-modify-write for one
	// batch under a row lock. It returns applied=false without mutating
	// anything if the batch was already folded in, making it safe to call
	// on every delivery of a redelivered ResultEnvelope.
	AdvanceIfNotProcessed(dbc dbctx.Context, jobID uuid.UUID, batchIndex int, matchCount int) (job *types.Job, applied bool, err error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRepo) Create(dbc dbctx.Context, job *types.Job) error {
	return r.tx(dbc).WithContext(dbc.Ctx).Create(job).Error
}

func (r *jobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error) {
	var job types.Job
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) ListCompleted(dbc dbctx.Context) ([]*types.Job, error) {
	var jobs []*types.Job
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("status = ?", types.JobStatusCompleted).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// AdvanceIfNotProcessed implements §4.4 step 2-5 and closes the aggregator
// anomaly flagged in §9 Open Question 2: a processed_batches row is the
// dedup key, inserted with ON CONFLICT DO NOTHING inside the same
// transaction as the job row's conditional UPDATE, so a redelivered
// envelope for a batch already observed is a true no-op instead of a
// double-count.
//
// The job row is locked and confirmed to exist before the processed_batches
// marker is ever inserted: an envelope for an unknown jobId must write zero
// rows (§4.4 step 1), and processed_batches has no FK to jobs, so inserting
// the marker first would leave a permanent orphan row for that case.
func (r *jobRepo) AdvanceIfNotProcessed(dbc dbctx.Context, jobID uuid.UUID, batchIndex int, matchCount int) (*types.Job, bool, error) {
	var job *types.Job
	var applied bool

	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txn *gorm.DB) error {
		var current types.Job
		if err := txn.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", jobID).Take(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		marker := &types.ProcessedBatch{JobID: jobID, BatchIndex: batchIndex}
		res := txn.Clauses(clause.OnConflict{DoNothing: true}).Create(marker)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Already processed; return the current row but do not advance
			// counters.
			job = &current
			return nil
		}

		newCompleted := current.BatchesCompleted + 1
		newFound := current.FoundCount + matchCount
		newStatus := current.Status
		if newCompleted >= current.BatchesExpected {
			newStatus = types.JobStatusCompleted
		}

		if err := txn.Model(&types.Job{}).
			Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"batches_completed": newCompleted,
				"found_count":       newFound,
				"status":            newStatus,
			}).Error; err != nil {
			return err
		}

		current.BatchesCompleted = newCompleted
		current.FoundCount = newFound
		current.Status = newStatus
		job = &current
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return job, applied, nil
}
