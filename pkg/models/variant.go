package models

import "time"

// QualityVariant represents one rendition of a video at a fixed quality.
type QualityVariant struct {
	ID         string    `json:"id" db:"id"`
	VideoID    string    `json:"video_id" db:"video_id"`
	JobID      string    `json:"job_id" db:"job_id"`
	Quality    string    `json:"quality" db:"quality"`
	Status     string    `json:"status" db:"status"`
	Progress   float64   `json:"progress" db:"progress"`
	Width      int       `json:"width,omitempty" db:"width"`
	Height     int       `json:"height,omitempty" db:"height"`
	Bitrate    int64     `json:"bitrate,omitempty" db:"bitrate"`
	FileSize   int64     `json:"file_size,omitempty" db:"file_size"`
	OutputPath string    `json:"output_path,omitempty" db:"output_path"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// VariantStatus constants
const (
	VariantStatusPending  = "pending"
	VariantStatusEncoding = "encoding"
	VariantStatusReady    = "ready"
	VariantStatusError    = "error"
	VariantStatusSkipped  = "skipped"
)

// Qualities is the fixed ordered set of renditions the pipeline can produce,
// highest first.
var Qualities = []string{"1080p", "720p", "480p", "360p", "240p"}

// IsKnownQuality reports whether the given quality belongs to the fixed set.
func IsKnownQuality(quality string) bool {
	for _, q := range Qualities {
		if q == quality {
			return true
		}
	}
	return false
}
