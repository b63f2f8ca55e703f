package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/streamforge/encoding-service/internal/token"
	"github.com/streamforge/encoding-service/pkg/models"
)

// RESTPublisher publishes encode jobs to an HTTP broker, authorizing each
// call with a bearer token from the token source.
type RESTPublisher struct {
	brokerURL string
	topic     string
	tokens    token.TokenSource
	client    *http.Client
}

// NewRESTPublisher creates a publisher for the given broker URL and topic.
func NewRESTPublisher(brokerURL, topic string, tokens token.TokenSource) *RESTPublisher {
	return &RESTPublisher{
		brokerURL: strings.TrimRight(brokerURL, "/"),
		topic:     topic,
		tokens:    tokens,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type publishRequest struct {
	Messages []publishMessage `json:"messages"`
}

type publishMessage struct {
	Data       string            `json:"data"`
	Attributes map[string]string `json:"attributes"`
}

type publishResponse struct {
	MessageIDs []string `json:"messageIds"`
}

// Publish serializes the job message, base64-encodes it as the broker
// payload and issues the publish call. On non-success it returns a
// PublishError carrying the upstream body; no message id is ever fabricated.
func (p *RESTPublisher) Publish(ctx context.Context, msg *models.EncodeJobMessage) (string, error) {
	bearer, err := p.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", &PublishError{Err: fmt.Errorf("failed to marshal job message: %w", err)}
	}

	body, err := json.Marshal(publishRequest{
		Messages: []publishMessage{{
			Data: base64.StdEncoding.EncodeToString(payload),
			Attributes: map[string]string{
				"videoId": msg.VideoID,
				"jobId":   msg.JobID,
			},
		}},
	})
	if err != nil {
		return "", &PublishError{Err: fmt.Errorf("failed to marshal publish request: %w", err)}
	}

	url := fmt.Sprintf("%s/topics/%s:publish", p.brokerURL, p.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &PublishError{Err: fmt.Errorf("failed to build publish request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &PublishError{Err: fmt.Errorf("broker unreachable: %w", err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &PublishError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	var pubResp publishResponse
	if err := json.Unmarshal(respBody, &pubResp); err != nil {
		return "", &PublishError{Err: fmt.Errorf("failed to decode broker response: %w", err)}
	}
	if len(pubResp.MessageIDs) == 0 {
		return "", &PublishError{Err: fmt.Errorf("broker returned no message id")}
	}

	return pubResp.MessageIDs[0], nil
}

// Close implements Publisher. The REST publisher holds no connection state.
func (p *RESTPublisher) Close() error {
	return nil
}
