package task

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
	JobSkipped JobStatus = "skipped"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Job is an execution record of a scheduled job.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	Name        string         `gorm:"column:name;index;type:varchar(100);not null" json:"name"`
	Trigger     Trigger        `gorm:"column:triggered_by;type:varchar(20)" json:"trigger"`
	Status      JobStatus      `gorm:"column:status;type:varchar(20);default:'running'" json:"status"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`
	StartedAt   time.Time      `gorm:"column:started_at;index" json:"started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	DurationMs  int64          `gorm:"column:duration_ms" json:"duration_ms"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func Models() []any {
	return []any{&Job{}}
}

// JobPayload is the asynq payload of a manual job trigger.
type JobPayload struct {
	Name string `json:"name"`
}

// CasePayload is the asynq payload of the per-case tasks.
type CasePayload struct {
	CaseID string `json:"case_id"`
}
