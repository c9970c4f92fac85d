package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Import source kinds. Each kind has exactly one adapter in the source
// registry; anything else is rejected at task-build time.
const (
	SourceKindEventbriteOrganizer = "eventbrite_organizer"
	SourceKindURL                 = "url"
	SourceKindHandle              = "handle"
	SourceKindMailbox             = "mailbox"
)

type ImportSource struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Kind           string         `gorm:"not null;column:kind;index" json:"kind"`
	Identifier     string         `gorm:"not null;column:identifier" json:"identifier"`
	ApprovalStatus string         `gorm:"column:approval_status;not null;default:'approved'" json:"approval_status"`
	IsExcluded     bool           `gorm:"column:is_excluded;not null;default:false" json:"is_excluded"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	EventDefaults  datatypes.JSON `gorm:"type:jsonb;column:event_defaults" json:"event_defaults"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ImportSource) TableName() string {
	return "import_sources"
}
