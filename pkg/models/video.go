package models

import "time"

// Video represents one uploaded video and the reduced state of its
// current encode cycle.
type Video struct {
	ID            string            `json:"id" db:"id"`
	Title         string            `json:"title" db:"title"`
	Status        string            `json:"status" db:"status"`
	Visibility    string            `json:"visibility" db:"visibility"`
	Duration      float64           `json:"duration" db:"duration"`
	Progress      float64           `json:"progress" db:"progress"`
	Variants      []*QualityVariant `json:"variants,omitempty" db:"-"`
	ThumbnailPath string            `json:"thumbnail_path,omitempty" db:"thumbnail_path"`
	AudioPath     string            `json:"audio_path,omitempty" db:"audio_path"`
	SourceWidth   int               `json:"source_width,omitempty" db:"source_width"`
	SourceHeight  int               `json:"source_height,omitempty" db:"source_height"`
	SourceCodec   string            `json:"source_codec,omitempty" db:"source_codec"`
	SourceBitrate int64             `json:"source_bitrate,omitempty" db:"source_bitrate"`
	SourceFPS     float64           `json:"source_fps,omitempty" db:"source_fps"`
	LastError     string            `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// VideoStatus constants. The in-progress statuses form a pipeline; the
// failed_* statuses are terminal and reachable only from their own stage.
const (
	VideoStatusPending             = "pending"
	VideoStatusUploading           = "uploading"
	VideoStatusEncoding            = "encoding"
	VideoStatusTranscribing        = "transcribing"
	VideoStatusIndexing            = "indexing"
	VideoStatusReady               = "ready"
	VideoStatusFailedEncoding      = "failed_encoding"
	VideoStatusFailedTranscription = "failed_transcription"
	VideoStatusFailedIndexing      = "failed_indexing"
)

// VideoVisibility constants
const (
	VideoVisibilityPrivate  = "private"
	VideoVisibilityUnlisted = "unlisted"
	VideoVisibilityPublic   = "public"
)

// IsTerminalVideoStatus reports whether a video status can no longer change.
func IsTerminalVideoStatus(status string) bool {
	switch status {
	case VideoStatusReady, VideoStatusFailedEncoding,
		VideoStatusFailedTranscription, VideoStatusFailedIndexing:
		return true
	}
	return false
}
