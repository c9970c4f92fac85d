package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Organizer struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name       string         `gorm:"uniqueIndex;not null;column:name" json:"name"`
	URL        string         `gorm:"column:url" json:"url"`
	OriginalID string         `gorm:"column:original_id;index" json:"original_id"`
	Aliases    datatypes.JSON `gorm:"type:jsonb;column:aliases" json:"aliases"`
	Hidden     bool           `gorm:"column:hidden;not null;default:false" json:"hidden"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Organizer) TableName() string {
	return "organizers"
}

type Community struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name        string     `gorm:"not null;column:name" json:"name"`
	Description string     `gorm:"column:description" json:"description"`
	OrganizerID *uuid.UUID `gorm:"type:uuid;index" json:"organizer_id,omitempty"`
	Visibility  string     `gorm:"column:visibility;not null;default:'public'" json:"visibility"`
	Type        string     `gorm:"column:type;not null" json:"type"`
	CreatedAt   time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Community) TableName() string {
	return "communities"
}

// CommunityTypeOrganizerPublic marks the single community every organizer
// owns; it is created lazily on first upsert and never duplicated.
const CommunityTypeOrganizerPublic = "organizer_public_community"

type EventCommunity struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EventID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_community" json:"event_id"`
	CommunityID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_event_community" json:"community_id"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (EventCommunity) TableName() string {
	return "event_communities"
}
