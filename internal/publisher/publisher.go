package publisher

import (
	"context"
	"fmt"

	"github.com/streamforge/encoding-service/pkg/models"
)

// Publisher hands an encode job to the worker fleet through a broker and
// returns the broker-assigned message id. The id is for audit only: webhook
// correlation uses the job id carried inside the message. Publish calls are
// not retried or deduplicated here; retry policy belongs to the caller.
type Publisher interface {
	Publish(ctx context.Context, msg *models.EncodeJobMessage) (string, error)
	Close() error
}

// PublishError reports a rejected or failed publish call, carrying the
// upstream response body so the caller can decide on retry.
type PublishError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("publish failed: %v", e.Err)
	}
	return fmt.Sprintf("publish failed: broker returned %d: %s", e.StatusCode, e.Body)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
