package models

import (
	"time"

	"gorm.io/datatypes"
)

// FinalizeJobStatus defines the worker queue states
type FinalizeJobStatus string

const (
	FinalizeJobPending    FinalizeJobStatus = "pending"
	FinalizeJobProcessing FinalizeJobStatus = "processing"
	FinalizeJobDone       FinalizeJobStatus = "done"
	FinalizeJobError      FinalizeJobStatus = "error"
)

// FinalizeJob queues a document for the finalization worker. Delivery is
// at-least-once: the pipeline itself is idempotent, so a replayed job is
// harmless. Claiming is a conditional update on status.
type FinalizeJob struct {
	ID         int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID string            `gorm:"index;not null" json:"documentId"`
	Status     FinalizeJobStatus `gorm:"default:'pending';index" json:"status"`
	Attempts   int               `gorm:"default:0" json:"attempts"`
	LastError  string            `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for FinalizeJob model
func (FinalizeJob) TableName() string {
	return "finalize_jobs"
}

// NotificationRecord is the per-recipient dispatch ledger for a completion
// event. One row per recipient per batch; failures stay visible for manual
// re-triggering.
type NotificationRecord struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID string `gorm:"index;not null" json:"documentId"`
	Recipient  string `gorm:"not null" json:"recipient"`
	Status     string `gorm:"not null" json:"status"` // sent | failed
	MessageID  string `json:"messageId,omitempty"`
	Error      string `gorm:"type:text" json:"error,omitempty"`

	Payload datatypes.JSON `json:"payload,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for NotificationRecord model
func (NotificationRecord) TableName() string {
	return "notification_records"
}
