package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/types"
)

type EventRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Event, error)
	// FindExisting implements the loose existence match: original_id
	// equality OR (start_date, organizer_id) OR (start_date, name).
	FindExisting(ctx context.Context, tx *gorm.DB, originalID string, startDate time.Time, organizerID uuid.UUID, name string) (*types.Event, error)
	Create(ctx context.Context, tx *gorm.DB, event *types.Event) (*types.Event, error)
	SetVisibility(ctx context.Context, tx *gorm.DB, id uuid.UUID, visibility string) error
	ListQueuedFuture(ctx context.Context, tx *gorm.DB, now time.Time) ([]*types.Event, error)
	SetClassificationStatus(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, status string) error
	SetTags(ctx context.Context, tx *gorm.DB, id uuid.UUID, tags datatypes.JSON) error
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{db: db, log: baseLog.With("repo", "EventRepo")}
}

func (r *eventRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Event
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

func (r *eventRepo) FindExisting(ctx context.Context, tx *gorm.DB, originalID string, startDate time.Time, organizerID uuid.UUID, name string) (*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	cond := transaction.
		Where("start_date = ? AND organizer_id = ?", startDate, organizerID).
		Or("start_date = ? AND name = ?", startDate, name)
	if originalID != "" {
		cond = cond.Or("original_id = ?", originalID)
	}

	var rows []*types.Event
	if err := transaction.WithContext(ctx).
		Where(cond).
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

func (r *eventRepo) Create(ctx context.Context, tx *gorm.DB, event *types.Event) (*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *eventRepo) SetVisibility(ctx context.Context, tx *gorm.DB, id uuid.UUID, visibility string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Event{}).
		Where("id = ?", id).
		Update("visibility", visibility).Error
}

func (r *eventRepo) ListQueuedFuture(ctx context.Context, tx *gorm.DB, now time.Time) ([]*types.Event, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Event
	if err := transaction.WithContext(ctx).
		Where("start_date >= ?", now).
		Where("classification_status = ? OR classification_status = '' OR classification_status IS NULL", types.ClassificationStatusQueued).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *eventRepo) SetClassificationStatus(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Event{}).
		Where("id IN ?", ids).
		Update("classification_status", status).Error
}

func (r *eventRepo) SetTags(ctx context.Context, tx *gorm.DB, id uuid.UUID, tags datatypes.JSON) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Event{}).
		Where("id = ?", id).
		Update("tags", tags).Error
}
