package jobs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
	"github.com/brightledger/hashlookup/internal/platform/logger"
)

type TargetRepo interface {
	// BulkCreate inserts every target in one statement; duplicate
	// (job_id, hash_hex) pairs within the batch, or a retry of the same
	// insert, collapse to a single row.
	BulkCreate(dbc dbctx.Context, targets []*types.Target) error
	CountByJobID(dbc dbctx.Context, jobID uuid.UUID) (int64, error)
}

type targetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTargetRepo(db *gorm.DB, baseLog *logger.Logger) TargetRepo {
	return &targetRepo{db: db, log: baseLog.With("repo", "TargetRepo")}
}

func (r *targetRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *targetRepo) BulkCreate(dbc dbctx.Context, targets []*types.Target) error {
	if len(targets) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&targets).Error
}

func (r *targetRepo) CountByJobID(dbc dbctx.Context, jobID uuid.UUID) (int64, error) {
	var n int64
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.Target{}).
		Where("job_id = ?", jobID).
		Count(&n).Error
	return n, err
}
