package reducer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/encoding-service/internal/logging"
	"github.com/streamforge/encoding-service/pkg/models"
)

// memStore is an in-memory Store. Reads return copies so state only changes
// through Update calls, mirroring a real repository.
type memStore struct {
	mu       sync.Mutex
	videos   map[string]models.Video
	jobs     map[string]models.EncodingJob
	variants map[string][]models.QualityVariant // keyed by job id
	applied  map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		videos:   make(map[string]models.Video),
		jobs:     make(map[string]models.EncodingJob),
		variants: make(map[string][]models.QualityVariant),
		applied:  make(map[string]time.Time),
	}
}

func (s *memStore) seedCycle(videoID, jobID string, qualities ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.videos[videoID] = models.Video{
		ID:     videoID,
		Title:  "test video",
		Status: models.VideoStatusPending,
	}
	s.jobs[jobID] = models.EncodingJob{
		ID:        jobID,
		VideoID:   videoID,
		Status:    models.JobStatusQueued,
		Qualities: models.QualityList(qualities),
	}
	for _, q := range qualities {
		s.variants[jobID] = append(s.variants[jobID], models.QualityVariant{
			ID:      jobID + "-" + q,
			VideoID: videoID,
			JobID:   jobID,
			Quality: q,
			Status:  models.VariantStatusPending,
		})
	}
}

func (s *memStore) GetJob(ctx context.Context, jobID string) (*models.EncodingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *memStore) GetVideo(ctx context.Context, videoID string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.videos[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	return &video, nil
}

func (s *memStore) GetVariantsByJobID(ctx context.Context, jobID string) ([]*models.QualityVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.QualityVariant
	for i := range s.variants[jobID] {
		v := s.variants[jobID][i]
		out = append(out, &v)
	}
	return out, nil
}

func (s *memStore) UpdateVideo(ctx context.Context, video *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.videos[video.ID] = *video
	return nil
}

func (s *memStore) UpdateJob(ctx context.Context, job *models.EncodingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = *job
	return nil
}

func (s *memStore) UpdateVariant(ctx context.Context, variant *models.QualityVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.variants[variant.JobID]
	for i := range list {
		if list[i].ID == variant.ID {
			list[i] = *variant
			return nil
		}
	}
	return ErrNotFound
}

func (s *memStore) LastApplied(ctx context.Context, jobID, eventType, quality string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.applied[jobID+"|"+eventType+"|"+quality]
	return ts, ok, nil
}

func (s *memStore) RecordApplied(ctx context.Context, jobID, eventType, quality string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applied[jobID+"|"+eventType+"|"+quality] = ts
	return nil
}

// snapshot is the persisted state relevant to the reduction contract.
type snapshot struct {
	VideoStatus   string
	VideoProgress float64
	VideoError    string
	Thumbnail     string
	Audio         string
	JobStatus     string
	JobError      string
	Variants      map[string]models.QualityVariant
}

func (s *memStore) snapshot(videoID, jobID string) snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		VideoStatus:   s.videos[videoID].Status,
		VideoProgress: s.videos[videoID].Progress,
		VideoError:    s.videos[videoID].LastError,
		Thumbnail:     s.videos[videoID].ThumbnailPath,
		Audio:         s.videos[videoID].AudioPath,
		JobStatus:     s.jobs[jobID].Status,
		JobError:      s.jobs[jobID].LastError,
		Variants:      make(map[string]models.QualityVariant),
	}
	for _, v := range s.variants[jobID] {
		snap.Variants[v.Quality] = v
	}
	return snap
}

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return baseTime.Add(time.Duration(seconds) * time.Second)
}

func evStarted(jobID, videoID string, ts time.Time) *models.EncodingEvent {
	return &models.EncodingEvent{
		Type: models.EventJobStarted, JobID: jobID, VideoID: videoID, Timestamp: ts,
		Started: &models.JobStartedData{Width: 1920, Height: 1080, Duration: 60, Codec: "h264", Bitrate: 4_000_000, FPS: 30},
	}
}

func evProgress(jobID, videoID string, ts time.Time, progress float64, quality string) *models.EncodingEvent {
	return &models.EncodingEvent{
		Type: models.EventJobProgress, JobID: jobID, VideoID: videoID, Timestamp: ts,
		Progress: &models.JobProgressData{Progress: progress, Quality: quality},
	}
}

func evQuality(jobID, videoID, quality string, ts time.Time) *models.EncodingEvent {
	return &models.EncodingEvent{
		Type: models.EventQualityCompleted, JobID: jobID, VideoID: videoID, Timestamp: ts,
		Quality: &models.QualityCompletedData{
			Quality:    quality,
			Width:      1280,
			Height:     720,
			Bitrate:    2_800_000,
			FileSize:   100 << 20,
			OutputPath: "outputs/" + videoID + "/" + jobID + "/" + quality + ".mp4",
		},
	}
}

func evCompleted(jobID, videoID string, ts time.Time, qualities ...string) *models.EncodingEvent {
	data := &models.JobCompletedData{Duration: 60}
	for _, q := range qualities {
		data.Qualities = append(data.Qualities, models.CompletedQuality{
			Quality:    q,
			OutputPath: "outputs/" + videoID + "/" + jobID + "/" + q + ".mp4",
			FileSize:   100 << 20,
		})
	}
	return &models.EncodingEvent{
		Type: models.EventJobCompleted, JobID: jobID, VideoID: videoID, Timestamp: ts,
		Completed: data,
	}
}

func evFailed(jobID, videoID, quality string, ts time.Time) *models.EncodingEvent {
	return &models.EncodingEvent{
		Type: models.EventJobFailed, JobID: jobID, VideoID: videoID, Timestamp: ts,
		Failed: &models.JobFailedData{Code: "ENCODE_FAILED", Message: "ffmpeg exited 1", Quality: quality},
	}
}

func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, perm := range permutations(n - 1) {
		for i := 0; i <= len(perm); i++ {
			next := make([]int, 0, n)
			next = append(next, perm[:i]...)
			next = append(next, n-1)
			next = append(next, perm[i:]...)
			out = append(out, next)
		}
	}
	return out
}

func TestApplyHappyPath(t *testing.T) {
	store := newMemStore()
	store.seedCycle("video-1", "job-1", "720p", "480p")
	r := New(store, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, evStarted("job-1", "video-1", at(0))))

	snap := store.snapshot("video-1", "job-1")
	assert.Equal(t, models.VideoStatusEncoding, snap.VideoStatus)
	assert.Equal(t, models.JobStatusProcessing, snap.JobStatus)

	require.NoError(t, r.Apply(ctx, evProgress("job-1", "video-1", at(10), 50, "720p")))
	snap = store.snapshot("video-1", "job-1")
	assert.InDelta(t, 50, snap.VideoProgress, 0.001)
	assert.InDelta(t, 50, snap.Variants["720p"].Progress, 0.001)
	assert.Equal(t, models.VideoStatusEncoding, snap.VideoStatus)

	require.NoError(t, r.Apply(ctx, evQuality("job-1", "video-1", "720p", at(20))))
	snap = store.snapshot("video-1", "job-1")
	assert.Equal(t, models.VariantStatusReady, snap.Variants["720p"].Status)
	assert.InDelta(t, 50, snap.VideoProgress, 0.001) // 1 of 2 renditions done

	require.NoError(t, r.Apply(ctx, evQuality("job-1", "video-1", "480p", at(30))))
	require.NoError(t, r.Apply(ctx, evCompleted("job-1", "video-1", at(40), "720p", "480p")))

	snap = store.snapshot("video-1", "job-1")
	assert.Equal(t, models.VideoStatusReady, snap.VideoStatus)
	assert.Equal(t, models.JobStatusCompleted, snap.JobStatus)
	assert.InDelta(t, 100, snap.VideoProgress, 0.001)
}

func TestApplyOrderIndependence(t *testing.T) {
	events := func(jobID, videoID string) []*models.EncodingEvent {
		return []*models.EncodingEvent{
			evStarted(jobID, videoID, at(0)),
			evQuality(jobID, videoID, "720p", at(10)),
			evQuality(jobID, videoID, "480p", at(20)),
			evCompleted(jobID, videoID, at(30), "720p", "480p"),
		}
	}

	var want *snapshot
	for i, perm := range permutations(4) {
		store := newMemStore()
		store.seedCycle("video-1", "job-1", "720p", "480p")
		r := New(store, logging.NewNopLogger())

		evs := events("job-1", "video-1")
		for _, idx := range perm {
			require.NoError(t, r.Apply(context.Background(), evs[idx]), "permutation %v", perm)
		}

		got := store.snapshot("video-1", "job-1")
		if want == nil {
			want = &got
			assert.Equal(t, models.VideoStatusReady, got.VideoStatus)
			assert.Equal(t, models.JobStatusCompleted, got.JobStatus)
			assert.InDelta(t, 100, got.VideoProgress, 0.001)
			continue
		}
		assert.Equal(t, *want, got, "permutation %d: %v", i, perm)
	}
}

// Requested [1080p, 720p, 480p]; only 720p completes, 480p fails, then the
// job completes. 1080p is skipped and the video still reaches ready.
func TestApplyPartialCompletion(t *testing.T) {
	store := newMemStore()
	store.seedCycle("video-1", "job-1", "1080p", "720p", "480p")
	r := New(store, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, evStarted("job-1", "video-1", at(0))))
	require.NoError(t, r.Apply(ctx, evQuality("job-1", "video-1", "720p", at(10))))
	require.NoError(t, r.Apply(ctx, evFailed("job-1", "video-1", "480p", at(20))))
	require.NoError(t, r.Apply(ctx, evCompleted("job-1", "video-1", at(30), "720p")))

	snap := store.snapshot("video-1", "job-1")
	assert.Equal(t, models.VideoStatusReady, snap.VideoStatus)
	assert.Equal(t, models.VariantStatusReady, snap.Variants["720p"].Status)
	assert.Equal(t, models.VariantStatusError, snap.Variants["480p"].Status)
	assert.Equal(t, models.VariantStatusSkipped, snap.Variants["1080p"].Status)
	assert.InDelta(t, 100.0*2/3, snap.VideoProgress, 0.01)
}

// A completion with zero ready renditions fails the video rather than
// declaring an empty success.
func TestApplyCompletionWithoutOutputs(t *testing.T) {
	store := newMemStore()
	store.seedCycle("video-1", "job-1", "720p", "480p")
	r := New(store, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, evStarted("job-1", "video-1", at(0))))
	require.NoError(t, r.Apply(ctx, evCompleted("job-1", "video-1", at(30))))

	snap := store.snapshot("video-1", "job-1")
	assert.Equal(t, models.VideoStatusFailedEncoding, snap.VideoStatus)
	assert.NotEmpty(t, snap.VideoError)
	assert.Equal(t, models.JobStatusCompleted, snap.JobStatus)
}

func TestApplyDuplicateCompletion(t *testing.T) {
	store := newMemStore()
	store.seedCycle("video-1", "job-1", "720p")
	r := New(store, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, evStarted("job-1", "video-1", at(0))))
	require.NoError(t, r.Apply(ctx, evQuality("job-1", "video-1", "720p", at(10))))

	completed := evCompleted("job-1", "video-1", at(30), "720p")
	require.NoError(t, r.Apply(ctx, completed))
	first := store.snapshot("video-1", "job-1")

	require.NoError(t, r.Apply(ctx, completed))
	second := store.snapshot("video-1", "job-1")

	assert.Equal(t, first, second)
}

func TestApplyStaleEventIsNoop(t *testing.T) {
	store := newMemStore()
	store.seedCycle("video-1", "job-1", "720p")
	r := New(store, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, evProgress("job-1", "video-1", at(20), 80, "")))

	// An older reading for the same tuple must not rewind the gauge.
	require.NoError(t, r.Apply(ctx, evProgress("job-1", "video-1", at(10), 30, "")))

	snap := store.snapshot("video-1", "job-1")
	assert.InDelta(t, 80, snap.VideoProgress, 0.001)
}

func TestApplyUnknownJob(t *testing.T) {
	store := newMemStore()
	r := New(store, logging.NewNopLogger())

	err := r.Apply(context.Background(), evStarted("job-missing", "video-1", at(0)))

	var conflict *StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "job-missing", conflict.JobID)
}

func TestApplyVideoMismatch(t *testing.T) {
	store := newMemStore()
	store.seedCycle("video-1", "job-1", "720p")
	r := New(store, logging.NewNopLogger())

	err := r.Apply(context.Background(), evStarted("job-1", "video-other", at(0)))

	var conflict *StateConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestApplyWholeJobFailureByStage(t *testing.T) {
	tests := []struct {
		stage string
		want  string
	}{
		{models.VideoStatusPending, models.VideoStatusFailedEncoding},
		{models.VideoStatusEncoding, models.VideoStatusFailedEncoding},
		{models.VideoStatusTranscribing, models.VideoStatusFailedTranscription},
		{models.VideoStatusIndexing, models.VideoStatusFailedIndexing},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			store := newMemStore()
			store.seedCycle("video-1", "job-1", "720p")

			store.mu.Lock()
			video := store.videos["video-1"]
			video.Status = tt.stage
			store.videos["video-1"] = video
			store.mu.Unlock()

			r := New(store, logging.NewNopLogger())
			require.NoError(t, r.Apply(context.Background(), evFailed("job-1", "video-1", "", at(10))))

			snap := store.snapshot("video-1", "job-1")
			assert.Equal(t, tt.want, snap.VideoStatus)
			assert.Equal(t, models.JobStatusFailed, snap.JobStatus)
			assert.Equal(t, "ffmpeg exited 1", snap.VideoError)
		})
	}
}

func TestApplyFailureAfterReadyIsIgnored(t *testing.T) {
	store := newMemStore()
	store.seedCycle("video-1", "job-1", "720p")
	r := New(store, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, evQuality("job-1", "video-1", "720p", at(10))))
	require.NoError(t, r.Apply(ctx, evFailed("job-1", "video-1", "720p", at(20))))

	snap := store.snapshot("video-1", "job-1")
	assert.Equal(t, models.VariantStatusReady, snap.Variants["720p"].Status)
}

func TestApplyAuxiliaryEvents(t *testing.T) {
	store := newMemStore()
	store.seedCycle("video-1", "job-1", "720p")
	r := New(store, logging.NewNopLogger())
	ctx := context.Background()

	thumb := &models.EncodingEvent{
		Type: models.EventThumbnailGenerated, JobID: "job-1", VideoID: "video-1", Timestamp: at(5),
		Thumbnail: &models.ThumbnailGeneratedData{Path: "outputs/video-1/job-1/thumb.jpg", Width: 1280, Height: 720},
	}
	audio := &models.EncodingEvent{
		Type: models.EventAudioExtracted, JobID: "job-1", VideoID: "video-1", Timestamp: at(6),
		Audio: &models.AudioExtractedData{OutputPath: "outputs/video-1/job-1/audio.aac", Format: "aac"},
	}

	require.NoError(t, r.Apply(ctx, thumb))
	require.NoError(t, r.Apply(ctx, audio))

	snap := store.snapshot("video-1", "job-1")
	assert.Equal(t, "outputs/video-1/job-1/thumb.jpg", snap.Thumbnail)
	assert.Equal(t, "outputs/video-1/job-1/audio.aac", snap.Audio)
	assert.Equal(t, models.VideoStatusPending, snap.VideoStatus, "auxiliary events never move status")
}

func TestApplyConcurrentQualities(t *testing.T) {
	qualities := []string{"1080p", "720p", "480p", "360p", "240p"}

	store := newMemStore()
	store.seedCycle("video-1", "job-1", qualities...)
	r := New(store, logging.NewNopLogger())

	var wg sync.WaitGroup
	for i, q := range qualities {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			err := r.Apply(context.Background(), evQuality("job-1", "video-1", q, at(10+i)))
			assert.NoError(t, err)
		}(i, q)
	}
	wg.Wait()

	snap := store.snapshot("video-1", "job-1")
	for _, q := range qualities {
		assert.Equal(t, models.VariantStatusReady, snap.Variants[q].Status, q)
	}
	assert.InDelta(t, 100, snap.VideoProgress, 0.001)
}

func TestApplyConcurrentVideosIndependent(t *testing.T) {
	store := newMemStore()
	r := New(store, logging.NewNopLogger())

	const n = 8
	for i := 0; i < n; i++ {
		store.seedCycle(fmt.Sprintf("video-%d", i), fmt.Sprintf("job-%d", i), "720p")
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jobID := fmt.Sprintf("job-%d", i)
			videoID := fmt.Sprintf("video-%d", i)
			ctx := context.Background()

			assert.NoError(t, r.Apply(ctx, evStarted(jobID, videoID, at(0))))
			assert.NoError(t, r.Apply(ctx, evQuality(jobID, videoID, "720p", at(10))))
			assert.NoError(t, r.Apply(ctx, evCompleted(jobID, videoID, at(20), "720p")))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		snap := store.snapshot(fmt.Sprintf("video-%d", i), fmt.Sprintf("job-%d", i))
		assert.Equal(t, models.VideoStatusReady, snap.VideoStatus)
	}
}
