package jobs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/brightledger/hashlookup/internal/domain"
	"github.com/brightledger/hashlookup/internal/pkg/dbctx"
	"github.com/brightledger/hashlookup/internal/platform/logger"
)

// ResultRow is one line of the downloadable CSV artifact: a target hash
// paired with its preimage if one was found, nil otherwise.
type ResultRow struct {
	Hash     string  `gorm:"column:hash_hex"`
	Preimage *string `gorm:"column:preimage"`
}

type ResultRepo interface {
	// BulkCreate is idempotent: a worker retrying a work unit after
	// redelivery writes the same (job_id, hash_hex) rows again with no
	// effect, per §4.3 step 3.
	BulkCreate(dbc dbctx.Context, results []*types.Result) error
	// ListForArtifact returns one row per target of the job, hash
	// ascending, with preimage nil where no match was found, matching the
	// CSV layout in §4.6.
	ListForArtifact(dbc dbctx.Context, jobID uuid.UUID) ([]ResultRow, error)
}

type resultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResultRepo(db *gorm.DB, baseLog *logger.Logger) ResultRepo {
	return &resultRepo{db: db, log: baseLog.With("repo", "ResultRepo")}
}

func (r *resultRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *resultRepo) BulkCreate(dbc dbctx.Context, results []*types.Result) error {
	if len(results) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&results).Error
}

func (r *resultRepo) ListForArtifact(dbc dbctx.Context, jobID uuid.UUID) ([]ResultRow, error) {
	var rows []ResultRow
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Table("targets").
		Select("targets.hash_hex AS hash_hex, results.preimage AS preimage").
		Joins("LEFT JOIN results ON results.job_id = targets.job_id AND results.hash_hex = targets.hash_hex").
		Where("targets.job_id = ?", jobID).
		Order("targets.hash_hex ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
