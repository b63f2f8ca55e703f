package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streamforge/encoding-service/pkg/models"
)

// ValidationError reports a payload that verified but does not match any of
// the known event shapes.
type ValidationError struct {
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid event payload: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("invalid event payload: %s", e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type envelope struct {
	Event     string          `json:"event"`
	JobID     string          `json:"jobId"`
	VideoID   string          `json:"videoId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ParseEvent parses a verified raw body into exactly one of the seven known
// event shapes. Anything else returns a ValidationError.
func ParseEvent(rawBody []byte) (*models.EncodingEvent, error) {
	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, &ValidationError{Detail: "body is not valid JSON", Err: err}
	}

	if env.JobID == "" {
		return nil, &ValidationError{Detail: "jobId is required"}
	}
	if env.VideoID == "" {
		return nil, &ValidationError{Detail: "videoId is required"}
	}
	if env.Timestamp.IsZero() {
		return nil, &ValidationError{Detail: "timestamp is required"}
	}
	if len(env.Data) == 0 {
		return nil, &ValidationError{Detail: "data is required"}
	}

	ev := &models.EncodingEvent{
		Type:      env.Event,
		JobID:     env.JobID,
		VideoID:   env.VideoID,
		Timestamp: env.Timestamp,
	}

	switch env.Event {
	case models.EventJobStarted:
		var data models.JobStartedData
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		if data.Width <= 0 || data.Height <= 0 {
			return nil, &ValidationError{Detail: "job.started requires a source resolution"}
		}
		ev.Started = &data

	case models.EventJobProgress:
		var data models.JobProgressData
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		if data.Progress < 0 || data.Progress > 100 {
			return nil, &ValidationError{Detail: "job.progress requires progress in [0,100]"}
		}
		if data.Quality != "" && !models.IsKnownQuality(data.Quality) {
			return nil, &ValidationError{Detail: fmt.Sprintf("unknown quality %q", data.Quality)}
		}
		ev.Progress = &data

	case models.EventQualityCompleted:
		var data models.QualityCompletedData
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		if !models.IsKnownQuality(data.Quality) {
			return nil, &ValidationError{Detail: fmt.Sprintf("unknown quality %q", data.Quality)}
		}
		if data.OutputPath == "" {
			return nil, &ValidationError{Detail: "quality.completed requires outputPath"}
		}
		if data.Width <= 0 || data.Height <= 0 {
			return nil, &ValidationError{Detail: "quality.completed requires dimensions"}
		}
		ev.Quality = &data

	case models.EventJobCompleted:
		var data models.JobCompletedData
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		for _, q := range data.Qualities {
			if !models.IsKnownQuality(q.Quality) {
				return nil, &ValidationError{Detail: fmt.Sprintf("unknown quality %q", q.Quality)}
			}
			if q.OutputPath == "" {
				return nil, &ValidationError{Detail: "job.completed qualities require outputPath"}
			}
		}
		ev.Completed = &data

	case models.EventJobFailed:
		var data models.JobFailedData
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		if data.Code == "" && data.Message == "" {
			return nil, &ValidationError{Detail: "job.failed requires a code or message"}
		}
		if data.Quality != "" && !models.IsKnownQuality(data.Quality) {
			return nil, &ValidationError{Detail: fmt.Sprintf("unknown quality %q", data.Quality)}
		}
		ev.Failed = &data

	case models.EventThumbnailGenerated:
		var data models.ThumbnailGeneratedData
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		if data.Path == "" {
			return nil, &ValidationError{Detail: "thumbnail.generated requires path"}
		}
		ev.Thumbnail = &data

	case models.EventAudioExtracted:
		var data models.AudioExtractedData
		if err := decodeData(env.Data, &data); err != nil {
			return nil, err
		}
		if data.OutputPath == "" {
			return nil, &ValidationError{Detail: "audio.extracted requires outputPath"}
		}
		ev.Audio = &data

	default:
		return nil, &ValidationError{Detail: fmt.Sprintf("unknown event type %q", env.Event)}
	}

	return ev, nil
}

func decodeData(raw json.RawMessage, into interface{}) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return &ValidationError{Detail: "data does not match event shape", Err: err}
	}
	return nil
}
