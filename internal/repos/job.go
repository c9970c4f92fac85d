package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/types"
)

type JobRepo interface {
	// Upsert persists the job snapshot; every scheduler state transition
	// goes through here so reads can be served from the store alone.
	Upsert(ctx context.Context, tx *gorm.DB, job *types.ScrapeJob) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScrapeJob, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.ScrapeJob, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) Upsert(ctx context.Context, tx *gorm.DB, job *types.ScrapeJob) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(job).Error
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScrapeJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.ScrapeJob
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *jobRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.ScrapeJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.ScrapeJob
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
