package model

import "time"

type BackupStatus string

const (
	BackupCompleted BackupStatus = "completed"
	BackupFailed    BackupStatus = "failed"
)

// Backup is one snapshot attempt. Key names the sealed object, locally and
// in the bucket.
type Backup struct {
	ID           string       `json:"id"`
	Key          string       `json:"key"`
	Path         string       `json:"path,omitempty"`
	Uploaded     bool         `json:"uploaded"`
	SizeBytes    int64        `json:"size_bytes"`
	Status       BackupStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  time.Time    `json:"completed_at"`
}
