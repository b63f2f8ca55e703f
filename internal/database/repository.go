package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/streamforge/encoding-service/internal/reducer"
	"github.com/streamforge/encoding-service/pkg/models"
)

// Repository provides database operations. It implements reducer.Store.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Videos

// CreateVideo creates a new video record
func (r *Repository) CreateVideo(ctx context.Context, video *models.Video) error {
	if video.ID == "" {
		video.ID = uuid.New().String()
	}

	query := `
		INSERT INTO videos (id, title, status, visibility, duration, progress,
		                    thumbnail_path, audio_path, source_width, source_height,
		                    source_codec, source_bitrate, source_fps, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		video.ID, video.Title, video.Status, video.Visibility, video.Duration,
		video.Progress, video.ThumbnailPath, video.AudioPath, video.SourceWidth,
		video.SourceHeight, video.SourceCodec, video.SourceBitrate, video.SourceFPS,
		video.LastError,
	).Scan(&video.CreatedAt, &video.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}

	return nil
}

// GetVideo retrieves a video by ID
func (r *Repository) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video

	query := `
		SELECT id, title, status, visibility, duration, progress, thumbnail_path,
		       audio_path, source_width, source_height, source_codec, source_bitrate,
		       source_fps, last_error, created_at, updated_at
		FROM videos
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&video.ID, &video.Title, &video.Status, &video.Visibility, &video.Duration,
		&video.Progress, &video.ThumbnailPath, &video.AudioPath, &video.SourceWidth,
		&video.SourceHeight, &video.SourceCodec, &video.SourceBitrate, &video.SourceFPS,
		&video.LastError, &video.CreatedAt, &video.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, reducer.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return &video, nil
}

// UpdateVideo updates a video record
func (r *Repository) UpdateVideo(ctx context.Context, video *models.Video) error {
	query := `
		UPDATE videos
		SET title = $2, status = $3, visibility = $4, duration = $5, progress = $6,
		    thumbnail_path = $7, audio_path = $8, source_width = $9, source_height = $10,
		    source_codec = $11, source_bitrate = $12, source_fps = $13, last_error = $14,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		video.ID, video.Title, video.Status, video.Visibility, video.Duration,
		video.Progress, video.ThumbnailPath, video.AudioPath, video.SourceWidth,
		video.SourceHeight, video.SourceCodec, video.SourceBitrate, video.SourceFPS,
		video.LastError,
	)

	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}

	return nil
}

// Jobs

// CreateJob creates a new encoding job record
func (r *Repository) CreateJob(ctx context.Context, job *models.EncodingJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	query := `
		INSERT INTO encoding_jobs (id, video_id, status, qualities, callback_secret, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		job.ID, job.VideoID, job.Status, job.Qualities, job.CallbackSecret, job.LastError,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves an encoding job by ID
func (r *Repository) GetJob(ctx context.Context, id string) (*models.EncodingJob, error) {
	var job models.EncodingJob

	query := `
		SELECT id, video_id, status, qualities, callback_secret, last_error,
		       started_at, completed_at, created_at, updated_at
		FROM encoding_jobs
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.VideoID, &job.Status, &job.Qualities, &job.CallbackSecret,
		&job.LastError, &job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, reducer.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// UpdateJob updates an encoding job record
func (r *Repository) UpdateJob(ctx context.Context, job *models.EncodingJob) error {
	query := `
		UPDATE encoding_jobs
		SET status = $2, qualities = $3, last_error = $4, started_at = $5,
		    completed_at = $6, updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		job.ID, job.Status, job.Qualities, job.LastError, job.StartedAt, job.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return nil
}

// GetActiveJobByVideoID retrieves the current encode cycle for a video
func (r *Repository) GetActiveJobByVideoID(ctx context.Context, videoID string) (*models.EncodingJob, error) {
	var job models.EncodingJob

	query := `
		SELECT id, video_id, status, qualities, callback_secret, last_error,
		       started_at, completed_at, created_at, updated_at
		FROM encoding_jobs
		WHERE video_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	err := r.db.Pool.QueryRow(ctx, query, videoID).Scan(
		&job.ID, &job.VideoID, &job.Status, &job.Qualities, &job.CallbackSecret,
		&job.LastError, &job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, reducer.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// Variants

// CreateVariant creates a new quality variant record
func (r *Repository) CreateVariant(ctx context.Context, variant *models.QualityVariant) error {
	if variant.ID == "" {
		variant.ID = uuid.New().String()
	}

	query := `
		INSERT INTO quality_variants (id, video_id, job_id, quality, status, progress,
		                              width, height, bitrate, file_size, output_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		variant.ID, variant.VideoID, variant.JobID, variant.Quality, variant.Status,
		variant.Progress, variant.Width, variant.Height, variant.Bitrate,
		variant.FileSize, variant.OutputPath,
	).Scan(&variant.CreatedAt, &variant.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create variant: %w", err)
	}

	return nil
}

// GetVariantsByJobID retrieves all variants for a job, ladder order
func (r *Repository) GetVariantsByJobID(ctx context.Context, jobID string) ([]*models.QualityVariant, error) {
	query := `
		SELECT id, video_id, job_id, quality, status, progress, width, height,
		       bitrate, file_size, output_path, created_at, updated_at
		FROM quality_variants
		WHERE job_id = $1
		ORDER BY height DESC, quality
	`

	rows, err := r.db.Pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variants: %w", err)
	}
	defer rows.Close()

	var variants []*models.QualityVariant
	for rows.Next() {
		var variant models.QualityVariant
		err := rows.Scan(
			&variant.ID, &variant.VideoID, &variant.JobID, &variant.Quality,
			&variant.Status, &variant.Progress, &variant.Width, &variant.Height,
			&variant.Bitrate, &variant.FileSize, &variant.OutputPath,
			&variant.CreatedAt, &variant.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		variants = append(variants, &variant)
	}

	return variants, nil
}

// UpdateVariant updates a quality variant record
func (r *Repository) UpdateVariant(ctx context.Context, variant *models.QualityVariant) error {
	query := `
		UPDATE quality_variants
		SET status = $2, progress = $3, width = $4, height = $5, bitrate = $6,
		    file_size = $7, output_path = $8, updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		variant.ID, variant.Status, variant.Progress, variant.Width, variant.Height,
		variant.Bitrate, variant.FileSize, variant.OutputPath,
	)

	if err != nil {
		return fmt.Errorf("failed to update variant: %w", err)
	}

	return nil
}

// Applied events (idempotence ledger)

// LastApplied returns the timestamp recorded for an applied event tuple
func (r *Repository) LastApplied(ctx context.Context, jobID, eventType, quality string) (time.Time, bool, error) {
	var ts time.Time

	query := `
		SELECT applied_at
		FROM applied_events
		WHERE job_id = $1 AND event_type = $2 AND quality = $3
	`

	err := r.db.Pool.QueryRow(ctx, query, jobID, eventType, quality).Scan(&ts)
	if err == pgx.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get applied event: %w", err)
	}

	return ts, true, nil
}

// RecordApplied upserts the timestamp for an applied event tuple
func (r *Repository) RecordApplied(ctx context.Context, jobID, eventType, quality string, ts time.Time) error {
	query := `
		INSERT INTO applied_events (job_id, event_type, quality, applied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, event_type, quality)
		DO UPDATE SET applied_at = EXCLUDED.applied_at
	`

	_, err := r.db.Pool.Exec(ctx, query, jobID, eventType, quality, ts)
	if err != nil {
		return fmt.Errorf("failed to record applied event: %w", err)
	}

	return nil
}

// Cycles

// CreateEncodeCycle creates the video, job and pending variant rows for one
// confirmed upload in a single transaction.
func (r *Repository) CreateEncodeCycle(ctx context.Context, video *models.Video, job *models.EncodingJob) error {
	if video.ID == "" {
		video.ID = uuid.New().String()
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.VideoID = video.ID

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO videos (id, title, status, visibility, duration, progress, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, video.ID, video.Title, video.Status, video.Visibility, video.Duration,
		video.Progress, video.LastError,
	).Scan(&video.CreatedAt, &video.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO encoding_jobs (id, video_id, status, qualities, callback_secret, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, job.ID, job.VideoID, job.Status, job.Qualities, job.CallbackSecret, job.LastError,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	for _, quality := range job.Qualities {
		_, err = tx.Exec(ctx, `
			INSERT INTO quality_variants (id, video_id, job_id, quality, status, progress)
			VALUES ($1, $2, $3, $4, $5, 0)
		`, uuid.New().String(), video.ID, job.ID, quality, models.VariantStatusPending)
		if err != nil {
			return fmt.Errorf("failed to create variant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
