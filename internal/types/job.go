package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"

	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

type ScrapeJob struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status         string         `gorm:"not null;column:status;index" json:"status"`
	Priority       int            `gorm:"not null;column:priority" json:"priority"`
	TotalTasks     int            `gorm:"not null;column:total_tasks" json:"total_tasks"`
	CompletedTasks int            `gorm:"not null;column:completed_tasks" json:"completed_tasks"`
	FailedTasks    int            `gorm:"not null;column:failed_tasks" json:"failed_tasks"`
	Source         string         `gorm:"column:source" json:"source"`
	Mode           string         `gorm:"column:mode" json:"mode"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	StartedAt      *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (ScrapeJob) TableName() string {
	return "scrape_jobs"
}

type ScrapeTask struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID      uuid.UUID      `gorm:"type:uuid;not null;index;column:job_id" json:"job_id"`
	URL        string         `gorm:"not null;column:url" json:"url"`
	Source     string         `gorm:"column:source" json:"source"`
	Status     string         `gorm:"not null;column:status;index" json:"status"`
	Priority   int            `gorm:"not null;column:priority" json:"priority"`
	Attempts   int            `gorm:"not null;column:attempts" json:"attempts"`
	Result     datatypes.JSON `gorm:"type:jsonb;column:result" json:"result,omitempty"`
	LastError  string         `gorm:"column:last_error" json:"last_error,omitempty"`
	EventID    string         `gorm:"column:event_id" json:"event_id,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
	StartedAt  *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

func (ScrapeTask) TableName() string {
	return "scrape_tasks"
}
