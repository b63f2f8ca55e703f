package reducer

import (
	"context"
	"errors"
	"fmt"

	"github.com/streamforge/encoding-service/internal/logging"
	"github.com/streamforge/encoding-service/internal/metrics"
	"github.com/streamforge/encoding-service/pkg/models"
)

// StateConflictError reports an event that references an unknown job or
// video, or disagrees with persisted correlation. It is logged and ignored
// by the ingestion path, never propagated as a crash.
type StateConflictError struct {
	JobID   string
	VideoID string
	Detail  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict for job %s: %s", e.JobID, e.Detail)
}

// Reducer folds validated webhook events into the persisted
// Video/EncodingJob/QualityVariant records. All mutation of one video's
// state happens under that video's lock; the reducer performs no outbound
// network calls.
type Reducer struct {
	store Store
	locks *videoLocks
	log   *logging.Logger
}

// New creates a reducer over the given store.
func New(store Store, log *logging.Logger) *Reducer {
	return &Reducer{
		store: store,
		locks: newVideoLocks(),
		log:   log,
	}
}

// Apply folds one validated event into persisted state. Duplicate and
// out-of-date deliveries are no-ops: an event only applies when its
// timestamp is newer than the one already recorded for its
// (jobID, eventType, quality) tuple.
func (r *Reducer) Apply(ctx context.Context, ev *models.EncodingEvent) error {
	job, err := r.store.GetJob(ctx, ev.JobID)
	if errors.Is(err, ErrNotFound) {
		return &StateConflictError{JobID: ev.JobID, VideoID: ev.VideoID, Detail: "unknown job"}
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	if job.VideoID != ev.VideoID {
		return &StateConflictError{
			JobID:   ev.JobID,
			VideoID: ev.VideoID,
			Detail:  fmt.Sprintf("event names video %s but job belongs to %s", ev.VideoID, job.VideoID),
		}
	}

	mu := r.locks.lock(job.VideoID)
	defer mu.Unlock()

	// Reload under the lock so concurrent deliveries observe each other.
	job, err = r.store.GetJob(ctx, ev.JobID)
	if errors.Is(err, ErrNotFound) {
		return &StateConflictError{JobID: ev.JobID, VideoID: ev.VideoID, Detail: "unknown job"}
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	video, err := r.store.GetVideo(ctx, job.VideoID)
	if errors.Is(err, ErrNotFound) {
		return &StateConflictError{JobID: ev.JobID, VideoID: job.VideoID, Detail: "unknown video"}
	}
	if err != nil {
		return fmt.Errorf("failed to load video: %w", err)
	}

	tupleQuality := eventQuality(ev)
	last, seen, err := r.store.LastApplied(ctx, ev.JobID, ev.Type, tupleQuality)
	if err != nil {
		return fmt.Errorf("failed to load applied-event record: %w", err)
	}
	if seen && !ev.Timestamp.After(last) {
		r.log.WithJobID(ev.JobID).WithVideoID(job.VideoID).
			Debugf("Dropping stale or duplicate %s event", ev.Type)
		metrics.ReducerEventsTotal.WithLabelValues(ev.Type, "duplicate").Inc()
		return nil
	}

	variants, err := r.store.GetVariantsByJobID(ctx, ev.JobID)
	if err != nil {
		return fmt.Errorf("failed to load variants: %w", err)
	}

	before := video.Status

	switch ev.Type {
	case models.EventJobStarted:
		r.applyStarted(video, job, ev)
	case models.EventJobProgress:
		err = r.applyProgress(ctx, video, variants, ev)
	case models.EventQualityCompleted:
		err = r.applyQualityCompleted(ctx, video, variants, ev)
	case models.EventJobCompleted:
		err = r.applyCompleted(ctx, video, job, variants, ev)
	case models.EventJobFailed:
		err = r.applyFailed(ctx, video, job, variants, ev)
	case models.EventThumbnailGenerated:
		video.ThumbnailPath = ev.Thumbnail.Path
	case models.EventAudioExtracted:
		video.AudioPath = ev.Audio.OutputPath
	default:
		return &StateConflictError{JobID: ev.JobID, VideoID: job.VideoID, Detail: fmt.Sprintf("unhandled event type %q", ev.Type)}
	}
	if err != nil {
		return err
	}

	if err := r.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}
	if err := r.store.UpdateVideo(ctx, video); err != nil {
		return fmt.Errorf("failed to persist video: %w", err)
	}
	if err := r.store.RecordApplied(ctx, ev.JobID, ev.Type, tupleQuality, ev.Timestamp); err != nil {
		return fmt.Errorf("failed to record applied event: %w", err)
	}

	if video.Status != before {
		r.log.LogStateTransition(video.ID, before, video.Status)
		metrics.VideoTransitionsTotal.WithLabelValues(before, video.Status).Inc()
	}
	metrics.ReducerEventsTotal.WithLabelValues(ev.Type, "applied").Inc()

	return nil
}

// applyStarted records the probed source characteristics and moves the video
// into encoding. Metadata is recorded even when the status can no longer
// move, so late redeliveries converge on the same final state.
func (r *Reducer) applyStarted(video *models.Video, job *models.EncodingJob, ev *models.EncodingEvent) {
	data := ev.Started

	video.SourceWidth = data.Width
	video.SourceHeight = data.Height
	video.SourceCodec = data.Codec
	video.SourceBitrate = data.Bitrate
	video.SourceFPS = data.FPS
	if data.Duration > 0 {
		video.Duration = data.Duration
	}

	if video.Status == models.VideoStatusPending || video.Status == models.VideoStatusUploading {
		video.Status = models.VideoStatusEncoding
	}

	if job.Status == models.JobStatusQueued {
		job.Status = models.JobStatusProcessing
	}
	if job.StartedAt == nil {
		started := ev.Timestamp
		job.StartedAt = &started
	}
}

// applyProgress updates the aggregate gauge and, when a quality is named,
// that variant's gauge. No status changes.
func (r *Reducer) applyProgress(ctx context.Context, video *models.Video, variants []*models.QualityVariant, ev *models.EncodingEvent) error {
	data := ev.Progress

	video.Progress = clampProgress(data.Progress)

	if data.Quality == "" {
		return nil
	}

	variant := findVariant(variants, data.Quality)
	if variant == nil {
		return &StateConflictError{
			JobID:   ev.JobID,
			VideoID: video.ID,
			Detail:  fmt.Sprintf("progress for unrequested quality %s", data.Quality),
		}
	}

	variant.Progress = clampProgress(data.Progress)
	if err := r.store.UpdateVariant(ctx, variant); err != nil {
		return fmt.Errorf("failed to persist variant: %w", err)
	}

	return nil
}

// applyQualityCompleted marks the named variant ready and recomputes the
// aggregate progress. A variant already marked skipped by an earlier
// job.completed is promoted to ready so delivery order cannot change the
// final state.
func (r *Reducer) applyQualityCompleted(ctx context.Context, video *models.Video, variants []*models.QualityVariant, ev *models.EncodingEvent) error {
	data := ev.Quality

	variant := findVariant(variants, data.Quality)
	if variant == nil {
		return &StateConflictError{
			JobID:   ev.JobID,
			VideoID: video.ID,
			Detail:  fmt.Sprintf("completion for unrequested quality %s", data.Quality),
		}
	}

	if variant.Status == models.VariantStatusError {
		// A recorded failure for this rendition stands.
		return nil
	}

	variant.Status = models.VariantStatusReady
	variant.Progress = 100
	variant.Width = data.Width
	variant.Height = data.Height
	variant.Bitrate = data.Bitrate
	variant.FileSize = data.FileSize
	variant.OutputPath = data.OutputPath

	if err := r.store.UpdateVariant(ctx, variant); err != nil {
		return fmt.Errorf("failed to persist variant: %w", err)
	}

	video.Progress = aggregateProgress(variants)
	return nil
}

// applyCompleted finishes the job. Requested variants the worker never
// reported are marked skipped; the video only fails when not a single
// rendition came out ready.
func (r *Reducer) applyCompleted(ctx context.Context, video *models.Video, job *models.EncodingJob, variants []*models.QualityVariant, ev *models.EncodingEvent) error {
	data := ev.Completed

	job.Status = models.JobStatusCompleted
	if job.CompletedAt == nil {
		completed := ev.Timestamp
		job.CompletedAt = &completed
	}
	if data.Duration > 0 {
		video.Duration = data.Duration
	}

	// Fold in the completion summary for renditions whose own
	// quality.completed event has not arrived (yet).
	for _, cq := range data.Qualities {
		variant := findVariant(variants, cq.Quality)
		if variant == nil {
			continue
		}
		if variant.Status == models.VariantStatusReady || variant.Status == models.VariantStatusError {
			continue
		}
		variant.Status = models.VariantStatusReady
		variant.Progress = 100
		variant.OutputPath = cq.OutputPath
		variant.FileSize = cq.FileSize
		if err := r.store.UpdateVariant(ctx, variant); err != nil {
			return fmt.Errorf("failed to persist variant: %w", err)
		}
	}

	ready := 0
	for _, variant := range variants {
		switch variant.Status {
		case models.VariantStatusReady:
			ready++
		case models.VariantStatusError:
			// stands
		default:
			variant.Status = models.VariantStatusSkipped
			if err := r.store.UpdateVariant(ctx, variant); err != nil {
				return fmt.Errorf("failed to persist variant: %w", err)
			}
		}
	}

	video.Progress = aggregateProgress(variants)

	if models.IsTerminalVideoStatus(video.Status) && video.Status != models.VideoStatusReady {
		// A terminal failure recorded earlier stands.
		return nil
	}

	if ready == 0 {
		video.Status = models.VideoStatusFailedEncoding
		video.LastError = "encoder reported completion without any ready renditions"
		job.LastError = video.LastError
		return nil
	}

	video.Status = models.VideoStatusReady
	return nil
}

// applyFailed handles both per-quality failures, which leave the rest of the
// job running, and whole-job failures, which fail the video at its current
// stage.
func (r *Reducer) applyFailed(ctx context.Context, video *models.Video, job *models.EncodingJob, variants []*models.QualityVariant, ev *models.EncodingEvent) error {
	data := ev.Failed

	message := data.Message
	if message == "" {
		message = data.Code
	}

	if data.Quality != "" {
		variant := findVariant(variants, data.Quality)
		if variant == nil {
			return &StateConflictError{
				JobID:   ev.JobID,
				VideoID: video.ID,
				Detail:  fmt.Sprintf("failure for unrequested quality %s", data.Quality),
			}
		}
		if variant.Status == models.VariantStatusReady {
			// An already-delivered rendition is not un-delivered.
			return nil
		}
		variant.Status = models.VariantStatusError
		if err := r.store.UpdateVariant(ctx, variant); err != nil {
			return fmt.Errorf("failed to persist variant: %w", err)
		}
		job.LastError = message
		return nil
	}

	job.Status = models.JobStatusFailed
	job.LastError = message
	if job.CompletedAt == nil {
		failed := ev.Timestamp
		job.CompletedAt = &failed
	}

	if models.IsTerminalVideoStatus(video.Status) {
		return nil
	}

	video.Status = failureStatusFor(video.Status)
	video.LastError = message
	return nil
}

// failureStatusFor maps an in-progress video status to its failure branch.
// Anything at or before the encode stage fails as failed_encoding.
func failureStatusFor(status string) string {
	switch status {
	case models.VideoStatusTranscribing:
		return models.VideoStatusFailedTranscription
	case models.VideoStatusIndexing:
		return models.VideoStatusFailedIndexing
	default:
		return models.VideoStatusFailedEncoding
	}
}

// aggregateProgress computes 100 * (ready or skipped) / requested, clamped.
func aggregateProgress(variants []*models.QualityVariant) float64 {
	if len(variants) == 0 {
		return 0
	}

	done := 0
	for _, variant := range variants {
		if variant.Status == models.VariantStatusReady || variant.Status == models.VariantStatusSkipped {
			done++
		}
	}

	return clampProgress(100 * float64(done) / float64(len(variants)))
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func findVariant(variants []*models.QualityVariant, quality string) *models.QualityVariant {
	for _, v := range variants {
		if v.Quality == quality {
			return v
		}
	}
	return nil
}

// eventQuality returns the quality component of the idempotence tuple, empty
// for events that are not quality-scoped.
func eventQuality(ev *models.EncodingEvent) string {
	switch ev.Type {
	case models.EventJobProgress:
		if ev.Progress != nil {
			return ev.Progress.Quality
		}
	case models.EventQualityCompleted:
		if ev.Quality != nil {
			return ev.Quality.Quality
		}
	case models.EventJobFailed:
		if ev.Failed != nil {
			return ev.Failed.Quality
		}
	}
	return ""
}
