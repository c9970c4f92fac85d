package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/types"
)

type ImportSourceRepo interface {
	ListActive(ctx context.Context, tx *gorm.DB) ([]*types.ImportSource, error)
	Create(ctx context.Context, tx *gorm.DB, source *types.ImportSource) (*types.ImportSource, error)
}

type importSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportSourceRepo(db *gorm.DB, baseLog *logger.Logger) ImportSourceRepo {
	return &importSourceRepo{db: db, log: baseLog.With("repo", "ImportSourceRepo")}
}

func (r *importSourceRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.ImportSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.ImportSource
	if err := transaction.WithContext(ctx).
		Where("is_excluded = ?", false).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *importSourceRepo) Create(ctx context.Context, tx *gorm.DB, source *types.ImportSource) (*types.ImportSource, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(source).Error; err != nil {
		return nil, err
	}
	return source, nil
}
