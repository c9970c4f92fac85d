package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Event struct {
	ID                        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OriginalID                string         `gorm:"column:original_id;index" json:"original_id"`
	OrganizerID               uuid.UUID      `gorm:"type:uuid;not null;index" json:"organizer_id"`
	Name                      string         `gorm:"not null;column:name" json:"name"`
	StartDate                 time.Time      `gorm:"column:start_date;index" json:"start_date"`
	EndDate                   *time.Time     `gorm:"column:end_date" json:"end_date,omitempty"`
	TicketURL                 string         `gorm:"column:ticket_url" json:"ticket_url"`
	EventURL                  string         `gorm:"column:event_url" json:"event_url"`
	SourceURL                 string         `gorm:"column:source_url" json:"source_url"`
	ImageURL                  string         `gorm:"column:image_url" json:"image_url"`
	Location                  string         `gorm:"column:location" json:"location"`
	Price                     string         `gorm:"column:price" json:"price"`
	Description               string         `gorm:"column:description" json:"description"`
	Tags                      datatypes.JSON `gorm:"type:jsonb;column:tags" json:"tags"`
	SourceTicketingPlatform   string         `gorm:"column:source_ticketing_platform" json:"source_ticketing_platform"`
	SourceOriginationPlatform string         `gorm:"column:source_origination_platform" json:"source_origination_platform"`
	Visibility                string         `gorm:"column:visibility;not null;default:'public'" json:"visibility"`
	ApprovalStatus            string         `gorm:"column:approval_status;not null;default:'approved'" json:"approval_status"`
	ClassificationStatus      string         `gorm:"column:classification_status;index" json:"classification_status"`
	TimestampScraped          time.Time      `gorm:"column:timestamp_scraped" json:"timestamp_scraped"`
	CreatedAt                 time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt                 time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Event) TableName() string {
	return "events"
}

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"

	ApprovalStatusApproved = "approved"
	ApprovalStatusPending  = "pending"
	ApprovalStatusRejected = "rejected"

	ClassificationStatusQueued = "queued"
	ClassificationStatusDone   = "classified"
)
