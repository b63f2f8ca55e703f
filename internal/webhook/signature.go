package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureError reasons
const (
	ReasonMissing  = "MISSING"
	ReasonStale    = "STALE"
	ReasonMismatch = "MISMATCH"
)

// SignatureError reports a rejected webhook signature.
type SignatureError struct {
	Reason string
	Detail string
}

func (e *SignatureError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("signature rejected (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("signature rejected (%s)", e.Reason)
}

// DefaultReplayWindow bounds how far a delivery timestamp may drift from the
// receiver clock in either direction.
const DefaultReplayWindow = 5 * time.Minute

// Verifier authenticates inbound webhook requests against the per-job shared
// secret using the `t=<unix>,v1=<hexhmac>` header scheme.
type Verifier struct {
	replayWindow time.Duration
	now          func() time.Time
}

// NewVerifier creates a verifier with the given replay window. A zero window
// falls back to DefaultReplayWindow.
func NewVerifier(replayWindow time.Duration) *Verifier {
	if replayWindow <= 0 {
		replayWindow = DefaultReplayWindow
	}
	return &Verifier{
		replayWindow: replayWindow,
		now:          time.Now,
	}
}

// Verify checks the signature header against the exact raw request bytes.
// The body must not have been re-serialized before this call.
func (v *Verifier) Verify(rawBody []byte, header, secret string) error {
	parts := parseSignatureHeader(header)

	ts, hasTS := parts["t"]
	sig, hasSig := parts["v1"]
	if !hasTS || !hasSig {
		return &SignatureError{Reason: ReasonMissing, Detail: "header must carry t and v1"}
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return &SignatureError{Reason: ReasonMissing, Detail: "t is not a unix timestamp"}
	}

	drift := v.now().Sub(time.Unix(unix, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > v.replayWindow {
		return &SignatureError{Reason: ReasonStale, Detail: fmt.Sprintf("timestamp drift %s exceeds %s", drift, v.replayWindow)}
	}

	expected := ComputeSignature(rawBody, ts, secret)

	// Constant-time comparison of the hex digests.
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return &SignatureError{Reason: ReasonMismatch}
	}

	return nil
}

// ComputeSignature returns hex(HMAC-SHA256(secret, "<t>.<rawBody>")). It is
// exported so tests and outbound tooling can produce valid headers.
func ComputeSignature(rawBody []byte, ts, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(rawBody)
	return hex.EncodeToString(h.Sum(nil))
}

// SignatureHeader builds a `t=...,v1=...` header value for the given body.
func SignatureHeader(rawBody []byte, t time.Time, secret string) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, ComputeSignature(rawBody, ts, secret))
}

// parseSignatureHeader splits "k=v,k=v" into a map, ignoring malformed
// elements so unknown future keys do not break verification.
func parseSignatureHeader(header string) map[string]string {
	parts := make(map[string]string)
	for _, element := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(element), "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			continue
		}
		parts[kv[0]] = kv[1]
	}
	return parts
}
