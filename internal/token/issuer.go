package token

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// AssertionLifetime is the validity window of the signed assertion and of
	// the access token minted from it.
	AssertionLifetime = time.Hour

	grantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// CredentialError reports a failure to mint a bearer token, either because
// the signing key is unusable or because the token endpoint rejected the
// assertion.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("credential error: %s", e.Reason)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// ServiceCredential is the static credential bundle used to sign token
// assertions. It is passed explicitly into NewIssuer so tests can substitute
// fake credentials without touching process state.
type ServiceCredential struct {
	KeyID         string
	PrivateKeyPEM []byte
	Issuer        string
	TokenURL      string
	Scope         string
}

// TokenSource mints bearer tokens for outbound broker calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Issuer exchanges a signed JWT assertion for a short-lived bearer token.
// Each call recomputes the assertion; callers wanting caching wrap the
// issuer in an expiry-aware TokenSource.
type Issuer struct {
	cred   ServiceCredential
	key    *rsa.PrivateKey
	client *http.Client
	now    func() time.Time
}

// NewIssuer creates an issuer from the given credential bundle.
func NewIssuer(cred ServiceCredential) (*Issuer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(cred.PrivateKeyPEM)
	if err != nil {
		return nil, &CredentialError{Reason: "failed to parse private key", Err: err}
	}

	return &Issuer{
		cred:   cred,
		key:    key,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}, nil
}

// Token signs an assertion and exchanges it at the token endpoint for a
// bearer access token.
func (i *Issuer) Token(ctx context.Context) (string, error) {
	assertion, err := i.signAssertion()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.cred.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &CredentialError{Reason: "failed to build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", &CredentialError{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &CredentialError{
			Reason: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", &CredentialError{Reason: "failed to decode token response", Err: err}
	}
	if tokenResp.AccessToken == "" {
		return "", &CredentialError{Reason: "token endpoint returned empty access_token"}
	}

	return tokenResp.AccessToken, nil
}

// signAssertion builds and signs the RS256 claim set. exp is exactly
// iat + AssertionLifetime.
func (i *Issuer) signAssertion() (string, error) {
	now := i.now()

	claims := jwt.MapClaims{
		"iss":   i.cred.Issuer,
		"scope": i.cred.Scope,
		"aud":   i.cred.TokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(AssertionLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.cred.KeyID

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", &CredentialError{Reason: "failed to sign assertion", Err: err}
	}

	return signed, nil
}
