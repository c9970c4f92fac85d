package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/types"
)

type CommunityRepo interface {
	GetOrganizerPublic(ctx context.Context, tx *gorm.DB, organizerID uuid.UUID) (*types.Community, error)
	Create(ctx context.Context, tx *gorm.DB, community *types.Community) (*types.Community, error)
}

type communityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCommunityRepo(db *gorm.DB, baseLog *logger.Logger) CommunityRepo {
	return &communityRepo{db: db, log: baseLog.With("repo", "CommunityRepo")}
}

// GetOrganizerPublic returns the organizer's owned community, oldest row
// first should duplicates ever exist in the store.
func (r *communityRepo) GetOrganizerPublic(ctx context.Context, tx *gorm.DB, organizerID uuid.UUID) (*types.Community, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Community
	if err := transaction.WithContext(ctx).
		Where("organizer_id = ? AND type = ?", organizerID, types.CommunityTypeOrganizerPublic).
		Order("created_at ASC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *communityRepo) Create(ctx context.Context, tx *gorm.DB, community *types.Community) (*types.Community, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(community).Error; err != nil {
		return nil, err
	}
	return community, nil
}
