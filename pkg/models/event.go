package models

import "time"

// Webhook event types sent by the worker fleet. The set is closed: any other
// value is rejected by the validator.
const (
	EventJobStarted         = "job.started"
	EventJobProgress        = "job.progress"
	EventQualityCompleted   = "quality.completed"
	EventJobCompleted       = "job.completed"
	EventJobFailed          = "job.failed"
	EventThumbnailGenerated = "thumbnail.generated"
	EventAudioExtracted     = "audio.extracted"
)

// EncodingEvent is one validated webhook callback. Exactly one of the typed
// data pointers is non-nil, matching Type.
type EncodingEvent struct {
	Type      string    `json:"event"`
	JobID     string    `json:"jobId"`
	VideoID   string    `json:"videoId"`
	Timestamp time.Time `json:"timestamp"`

	Started   *JobStartedData         `json:"-"`
	Progress  *JobProgressData        `json:"-"`
	Quality   *QualityCompletedData   `json:"-"`
	Completed *JobCompletedData       `json:"-"`
	Failed    *JobFailedData          `json:"-"`
	Thumbnail *ThumbnailGeneratedData `json:"-"`
	Audio     *AudioExtractedData     `json:"-"`
}

// JobStartedData reports the probed source characteristics when the worker
// picks the job up.
type JobStartedData struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
	Codec    string  `json:"codec"`
	Bitrate  int64   `json:"bitrate"`
	FPS      float64 `json:"fps"`
}

// JobProgressData reports aggregate and optionally per-quality progress.
type JobProgressData struct {
	Progress float64 `json:"progress"`
	Quality  string  `json:"quality,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// QualityCompletedData reports one finished rendition.
type QualityCompletedData struct {
	Quality    string `json:"quality"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bitrate    int64  `json:"bitrate"`
	FileSize   int64  `json:"fileSize"`
	OutputPath string `json:"outputPath"`
}

// CompletedQuality is one rendition summary inside a job.completed event.
type CompletedQuality struct {
	Quality    string `json:"quality"`
	OutputPath string `json:"outputPath"`
	FileSize   int64  `json:"fileSize"`
}

// JobCompletedData reports the whole job finishing.
type JobCompletedData struct {
	Duration  float64            `json:"duration"`
	Qualities []CompletedQuality `json:"qualities"`
}

// JobFailedData reports a failure of one quality or of the whole job.
type JobFailedData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// ThumbnailGeneratedData reports the extracted thumbnail.
type ThumbnailGeneratedData struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// AudioExtractedData reports the extracted audio track.
type AudioExtractedData struct {
	OutputPath string  `json:"outputPath"`
	Size       int64   `json:"size"`
	Duration   float64 `json:"duration"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
	BitDepth   int     `json:"bitDepth"`
}
