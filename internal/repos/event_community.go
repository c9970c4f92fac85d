package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/types"
)

type EventCommunityRepo interface {
	Exists(ctx context.Context, tx *gorm.DB, eventID, communityID uuid.UUID) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, link *types.EventCommunity) error
}

type eventCommunityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventCommunityRepo(db *gorm.DB, baseLog *logger.Logger) EventCommunityRepo {
	return &eventCommunityRepo{db: db, log: baseLog.With("repo", "EventCommunityRepo")}
}

func (r *eventCommunityRepo) Exists(ctx context.Context, tx *gorm.DB, eventID, communityID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.EventCommunity{}).
		Where("event_id = ? AND community_id = ?", eventID, communityID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *eventCommunityRepo) Create(ctx context.Context, tx *gorm.DB, link *types.EventCommunity) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(link).Error
}
