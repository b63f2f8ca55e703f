package reducer

import (
	"context"
	"errors"
	"time"

	"github.com/streamforge/encoding-service/pkg/models"
)

// ErrNotFound is returned by Store implementations when a record does not
// exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence surface the reducer mutates. Implementations only
// need atomic single-row writes: the reducer itself serializes all mutations
// to one video's records.
type Store interface {
	GetJob(ctx context.Context, jobID string) (*models.EncodingJob, error)
	GetVideo(ctx context.Context, videoID string) (*models.Video, error)
	GetVariantsByJobID(ctx context.Context, jobID string) ([]*models.QualityVariant, error)

	UpdateVideo(ctx context.Context, video *models.Video) error
	UpdateJob(ctx context.Context, job *models.EncodingJob) error
	UpdateVariant(ctx context.Context, variant *models.QualityVariant) error

	// LastApplied returns the timestamp recorded for an applied
	// (jobID, eventType, quality) tuple, if any.
	LastApplied(ctx context.Context, jobID, eventType, quality string) (time.Time, bool, error)
	// RecordApplied stores the timestamp for an applied tuple, replacing any
	// earlier one.
	RecordApplied(ctx context.Context, jobID, eventType, quality string, ts time.Time) error
}
