package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// EncodingJob represents one dispatched encode cycle for a video. The job id
// is generated by the caller at creation time and is the correlation key for
// every webhook event the worker fleet sends back.
type EncodingJob struct {
	ID             string      `json:"id" db:"id"`
	VideoID        string      `json:"video_id" db:"video_id"`
	Status         string      `json:"status" db:"status"`
	Qualities      QualityList `json:"qualities" db:"qualities"`
	CallbackSecret string      `json:"-" db:"callback_secret"`
	LastError      string      `json:"last_error,omitempty" db:"last_error"`
	StartedAt      *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// QualityList holds the qualities requested for a job.
type QualityList []string

// Value implements driver.Valuer for database storage
func (ql QualityList) Value() (driver.Value, error) {
	return json.Marshal(ql)
}

// Scan implements sql.Scanner for database retrieval
func (ql *QualityList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, ql)
}

// Contains reports whether the list includes the given quality.
func (ql QualityList) Contains(quality string) bool {
	for _, q := range ql {
		if q == quality {
			return true
		}
	}
	return false
}

// JobStatus constants
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)
