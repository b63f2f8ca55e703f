package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamforge/encoding-service/internal/metrics"
	"github.com/streamforge/encoding-service/internal/publisher"
	"github.com/streamforge/encoding-service/internal/reducer"
	"github.com/streamforge/encoding-service/internal/storage"
	"github.com/streamforge/encoding-service/internal/token"
	"github.com/streamforge/encoding-service/internal/tracing"
	"github.com/streamforge/encoding-service/pkg/models"
)

// identityHeader carries the caller identity resolved by the upstream
// authentication layer.
const identityHeader = "X-User-ID"

func (api *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createUpload issues a presigned PUT URL for a new source object.
func (api *API) createUpload(c *gin.Context) {
	videoID := uuid.New().String()
	object := storage.SourceObject(videoID)

	url, err := api.storage.PresignedUpload(c.Request.Context(), object)
	if err != nil {
		api.log.ErrorWithErr("Failed to presign upload", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to presign upload"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"video_id":   videoID,
		"object":     object,
		"upload_url": url,
	})
}

// submitEncode creates the encode cycle for an uploaded video and dispatches
// the job to the worker fleet. Publish failures surface synchronously; the
// caller owns retry policy and a retried submit creates a new job.
func (api *API) submitEncode(c *gin.Context) {
	videoID := c.Param("id")

	var req struct {
		Title        string   `json:"title" binding:"required"`
		Qualities    []string `json:"qualities" binding:"required,min=1"`
		Visibility   string   `json:"visibility"`
		ExtractAudio bool     `json:"extract_audio"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, q := range req.Qualities {
		if !models.IsKnownQuality(q) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown quality %q", q)})
			return
		}
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VideoVisibilityPrivate
	}

	secret, err := newCallbackSecret()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate callback secret"})
		return
	}

	video := &models.Video{
		ID:         videoID,
		Title:      req.Title,
		Status:     models.VideoStatusPending,
		Visibility: visibility,
	}
	job := &models.EncodingJob{
		ID:             uuid.New().String(),
		Status:         models.JobStatusQueued,
		Qualities:      models.QualityList(req.Qualities),
		CallbackSecret: secret,
	}

	ctx := c.Request.Context()

	if err := api.repo.CreateEncodeCycle(ctx, video, job); err != nil {
		api.log.WithVideoID(videoID).ErrorWithErr("Failed to create encode cycle", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create encode cycle"})
		return
	}

	source, err := api.storage.PresignedDownload(ctx, storage.SourceObject(videoID))
	if err != nil {
		api.log.WithVideoID(videoID).ErrorWithErr("Failed to presign source", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to presign source"})
		return
	}

	msg := &models.EncodeJobMessage{
		JobID:        job.ID,
		VideoID:      video.ID,
		Source:       source,
		OutputPrefix: storage.OutputPrefix(video.ID, job.ID),
		Qualities:    models.QualityConfigsFor(job.Qualities),
		Thumbnail:    &models.ThumbnailSpec{TimeOffset: 3, Width: 1280, Height: 720},
		ExtractAudio: req.ExtractAudio,
		CallbackURL:  fmt.Sprintf("%s/api/v1/webhooks/encoding/%s", api.cfg.Webhook.CallbackBaseURL, job.ID),
		Secret:       secret,
		Metadata: models.JobMessageMeta{
			UserID:    c.GetHeader(identityHeader),
			Title:     req.Title,
			CreatedAt: time.Now().UTC(),
		},
	}

	span, ctx := tracing.StartSpan(ctx, "publisher.Publish")
	tracing.TagJob(span, job.ID, video.ID)

	start := time.Now()
	messageID, err := api.publisher.Publish(ctx, msg)
	metrics.PublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		tracing.LogError(span, err)
		tracing.FinishSpan(span)
		metrics.PublishesTotal.WithLabelValues(api.cfg.Broker.Kind, "error").Inc()
		api.failCycle(c, video, job, err)
		return
	}
	tracing.FinishSpan(span)
	metrics.PublishesTotal.WithLabelValues(api.cfg.Broker.Kind, "ok").Inc()

	api.log.WithVideoID(video.ID).WithJobID(job.ID).
		Infof("Encode job published, message id %s", messageID)

	c.JSON(http.StatusAccepted, gin.H{
		"video_id":   video.ID,
		"job_id":     job.ID,
		"message_id": messageID,
	})
}

// failCycle records a dispatch failure on the freshly created rows and maps
// the error to a response. Raw upstream protocol errors stay in the log.
func (api *API) failCycle(c *gin.Context, video *models.Video, job *models.EncodingJob, err error) {
	api.log.WithVideoID(video.ID).WithJobID(job.ID).ErrorWithErr("Failed to publish encode job", err)

	ctx := c.Request.Context()

	job.Status = models.JobStatusFailed
	job.LastError = "failed to dispatch encode job"
	if updateErr := api.repo.UpdateJob(ctx, job); updateErr != nil {
		api.log.WithJobID(job.ID).ErrorWithErr("Failed to record job failure", updateErr)
	}

	video.Status = models.VideoStatusFailedEncoding
	video.LastError = "failed to dispatch encode job"
	if updateErr := api.repo.UpdateVideo(ctx, video); updateErr != nil {
		api.log.WithVideoID(video.ID).ErrorWithErr("Failed to record video failure", updateErr)
	}

	var credErr *token.CredentialError
	var pubErr *publisher.PublishError
	switch {
	case errors.As(err, &credErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to authorize with the encode broker"})
	case errors.As(err, &pubErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Encode broker rejected the job"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to dispatch encode job"})
	}
}

// getVideo returns the reduced state of a video, read-through the cache.
func (api *API) getVideo(c *gin.Context) {
	videoID := c.Param("id")
	ctx := c.Request.Context()

	if cached, err := api.cache.GetVideo(ctx, videoID); err == nil && cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	video, err := api.repo.GetVideo(ctx, videoID)
	if errors.Is(err, reducer.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}
	if err != nil {
		api.log.WithVideoID(videoID).ErrorWithErr("Failed to load video", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load video"})
		return
	}

	if job, err := api.repo.GetActiveJobByVideoID(ctx, videoID); err == nil {
		if variants, err := api.repo.GetVariantsByJobID(ctx, job.ID); err == nil {
			video.Variants = variants
		}
	}

	if err := api.cache.SetVideo(ctx, video, 30*time.Second); err != nil {
		api.log.WithVideoID(videoID).WithError(err).Warn("Failed to cache video")
	}

	c.JSON(http.StatusOK, video)
}

// newCallbackSecret generates the per-job webhook signing secret.
func newCallbackSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
