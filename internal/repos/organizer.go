package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/types"
)

type OrganizerRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Organizer, error)
	FindByNameOrAlias(ctx context.Context, tx *gorm.DB, name string) (*types.Organizer, error)
	Create(ctx context.Context, tx *gorm.DB, organizer *types.Organizer) (*types.Organizer, error)
	Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, patch map[string]any) error
}

type organizerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrganizerRepo(db *gorm.DB, baseLog *logger.Logger) OrganizerRepo {
	return &organizerRepo{db: db, log: baseLog.With("repo", "OrganizerRepo")}
}

func (r *organizerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Organizer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Organizer
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

// FindByNameOrAlias matches case-insensitively against the organizer name
// first, then against accumulated aliases. The first match wins.
func (r *organizerRepo) FindByNameOrAlias(ctx context.Context, tx *gorm.DB, name string) (*types.Organizer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	lowered := strings.ToLower(strings.TrimSpace(name))
	if lowered == "" {
		return nil, nil
	}

	var rows []*types.Organizer
	if err := transaction.WithContext(ctx).
		Where("LOWER(name) = ?", lowered).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return rows[0], nil
	}

	// Aliases are a JSON array of strings; match on the serialized form so
	// the same query works on postgres jsonb and sqlite text.
	pattern := "%\"" + lowered + "\"%"
	if err := transaction.WithContext(ctx).
		Where("LOWER(CAST(aliases AS TEXT)) LIKE ?", pattern).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return rows[0], nil
	}
	return nil, nil
}

func (r *organizerRepo) Create(ctx context.Context, tx *gorm.DB, organizer *types.Organizer) (*types.Organizer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(organizer).Error; err != nil {
		return nil, err
	}
	return organizer, nil
}

func (r *organizerRepo) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, patch map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(patch) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Organizer{}).
		Where("id = ?", id).
		Updates(patch).Error
}
