// Package upstream holds the HTTP clients for the external collaborators:
// the policy service (CRUD, structure save/validate/enhance, rendering), the
// generation service (chat and structure generation), and the workflow
// service (submit/approve/reject). Clients speak plain REST/JSON, forward
// the caller's bearer token, and translate failures into the gate taxonomy
// before anything reaches application state.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"policystudio/api/internal/gate"
)

type tokenKey struct{}

// WithToken stashes the caller's bearer token for forwarding to upstream
// calls made under this context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token WithToken stashed, if any.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok
}

func tokenFrom(ctx context.Context) string {
	token, _ := TokenFromContext(ctx)
	return token
}

type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) client {
	return client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx upstream response that is neither a validation
// failure nor an outage.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream status %d", e.Status)
}

// validationPayload is the structured failure the policy service attaches
// when the AI validation check rejects a structure.
type validationPayload struct {
	AIValidationFailed   bool              `json:"ai_validation_failed"`
	Issues               []gate.Issue      `json:"issues"`
	Suggestions          []string          `json:"suggestions"`
	NormalizedFieldNames map[string]string `json:"normalized_field_names"`
	Message              string            `json:"message"`
}

func (c client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	return mapFailure(resp.StatusCode, payload)
}

// doRaw performs a request whose successful response is a binary blob.
func (c client) doRaw(ctx context.Context, method, path string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", mapFailure(resp.StatusCode, payload)
	}
	return payload, resp.Header.Get("Content-Type"), nil
}

// mapFailure pins an upstream failure to the gate taxonomy. 503 and its
// gateway equivalents are an AI backend outage; a body carrying
// ai_validation_failed is a validation rejection; everything else surfaces
// as a generic APIError.
func mapFailure(status int, payload []byte) error {
	if status == http.StatusServiceUnavailable || status == http.StatusBadGateway || status == http.StatusGatewayTimeout {
		return fmt.Errorf("upstream status %d: %w", status, gate.ErrServiceUnavailable)
	}

	var validation validationPayload
	if err := json.Unmarshal(payload, &validation); err == nil && validation.AIValidationFailed {
		return &gate.ValidationError{
			Issues:      validation.Issues,
			Suggestions: validation.Suggestions,
			RenameMap:   validation.NormalizedFieldNames,
			Message:     validation.Message,
		}
	}

	var body struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &body)
	message := body.Message
	if message == "" {
		message = body.Error
	}
	return &APIError{Status: status, Code: body.Code, Message: message}
}
