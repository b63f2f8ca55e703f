package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streamforge/encoding-service/internal/logging"
	"github.com/streamforge/encoding-service/internal/metrics"
	"github.com/streamforge/encoding-service/internal/reducer"
	"github.com/streamforge/encoding-service/internal/tracing"
	"github.com/streamforge/encoding-service/pkg/models"
)

// SignatureHeaderName carries the timestamped HMAC signature on inbound
// callbacks.
const SignatureHeaderName = "X-Webhook-Signature"

// maxBodyBytes bounds inbound callback bodies. Encode events are small.
const maxBodyBytes = 1 << 20

// JobSource looks up the job an inbound callback claims to belong to, for
// secret resolution before the body can be trusted.
type JobSource interface {
	GetJob(ctx context.Context, jobID string) (*models.EncodingJob, error)
}

// Invalidator drops cached read state after a reduction.
type Invalidator interface {
	DeleteVideo(ctx context.Context, videoID string) error
}

// Handler ingests worker callbacks: verify, validate, reduce. Every delivery
// is handled independently; a failure for one event never aborts ingestion
// of unrelated ones.
type Handler struct {
	jobs       JobSource
	verifier   *Verifier
	reducer    *reducer.Reducer
	invalidate Invalidator
	log        *logging.Logger
}

// NewHandler creates a webhook ingest handler. invalidate may be nil when no
// read cache is configured.
func NewHandler(jobs JobSource, verifier *Verifier, red *reducer.Reducer, invalidate Invalidator, log *logging.Logger) *Handler {
	return &Handler{
		jobs:       jobs,
		verifier:   verifier,
		reducer:    red,
		invalidate: invalidate,
		log:        log,
	}
}

// Handle is the gin handler for POST /api/v1/webhooks/encoding/:jobID.
func (h *Handler) Handle(c *gin.Context) {
	jobID := c.Param("jobID")
	ctx := c.Request.Context()

	rawBody, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	job, err := h.jobs.GetJob(ctx, jobID)
	if errors.Is(err, reducer.ErrNotFound) {
		h.log.WithJobID(jobID).Warn("Webhook for unknown job")
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	if err != nil {
		h.log.WithJobID(jobID).ErrorWithErr("Failed to resolve webhook secret", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve job"})
		return
	}

	if err := h.verifier.Verify(rawBody, c.GetHeader(SignatureHeaderName), job.CallbackSecret); err != nil {
		var sigErr *SignatureError
		reason := ReasonMismatch
		if errors.As(err, &sigErr) {
			reason = sigErr.Reason
		}
		metrics.SignatureFailuresTotal.WithLabelValues(reason).Inc()
		h.log.WithJobID(jobID).WithError(err).Warn("Webhook signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	ev, err := ParseEvent(rawBody)
	if err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("invalid", "rejected").Inc()
		h.log.WithJobID(jobID).WithError(err).Warn("Webhook payload rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if ev.JobID != jobID {
		metrics.WebhookDeliveriesTotal.WithLabelValues(ev.Type, "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "body jobId does not match callback path"})
		return
	}

	span, ctx := tracing.StartSpan(ctx, "reducer.Apply")
	span.SetTag("event", ev.Type)
	tracing.TagJob(span, ev.JobID, ev.VideoID)
	defer tracing.FinishSpan(span)

	if err := h.reducer.Apply(ctx, ev); err != nil {
		var conflict *reducer.StateConflictError
		if errors.As(err, &conflict) {
			// Unknown or mismatched references are logged and ignored so the
			// upstream sender stops redelivering.
			metrics.WebhookDeliveriesTotal.WithLabelValues(ev.Type, "conflict").Inc()
			h.log.WithJobID(ev.JobID).WithVideoID(ev.VideoID).WithError(err).Warn("Webhook event ignored")
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		tracing.LogError(span, err)
		metrics.WebhookDeliveriesTotal.WithLabelValues(ev.Type, "error").Inc()
		h.log.WithJobID(ev.JobID).ErrorWithErr("Failed to apply webhook event", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply event"})
		return
	}

	if h.invalidate != nil {
		if err := h.invalidate.DeleteVideo(ctx, ev.VideoID); err != nil {
			h.log.WithVideoID(ev.VideoID).WithError(err).Warn("Failed to invalidate video cache")
		}
	}

	metrics.WebhookDeliveriesTotal.WithLabelValues(ev.Type, "applied").Inc()
	h.log.LogWebhookEvent(ev.JobID, ev.VideoID, ev.Type, "applied")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
