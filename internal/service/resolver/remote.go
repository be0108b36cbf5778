package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// ChatPath is appended to the configured base URL.
	ChatPath = "/api/chat"

	DefaultTimeout = 10 * time.Second

	maxReplyBytes = 4 << 20
)

// RemoteConfig configures the HTTP resolver.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RemoteResolver posts utterances to {BaseURL}/api/chat.
type RemoteResolver struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewRemoteResolver builds a resolver with a client bound to the configured timeout.
func NewRemoteResolver(cfg RemoteConfig) *RemoteResolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &RemoteResolver{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + ChatPath,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// Resolve issues a single request; it never retries.
func (r *RemoteResolver) Resolve(ctx context.Context, utterance string) (string, error) {
	payload, err := json.Marshal(chatRequest{Message: utterance})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", networkError(err.Error(), 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", networkError(r.transportMessage(err), 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", networkError(r.transportMessage(err), resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := serverMessage(body)
		if message == "" {
			message = fmt.Sprintf("Request failed with status code %d", resp.StatusCode)
		}
		return "", networkError(message, resp.StatusCode, nil)
	}

	reply, err := ParseReply(body)
	if err != nil {
		if errors.Is(err, ErrEmptyResponse) {
			return "", err
		}
		return "", networkError(err.Error(), resp.StatusCode, err)
	}

	return reply.Text, nil
}

func (r *RemoteResolver) transportMessage(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Sprintf("timeout of %dms exceeded", r.timeout.Milliseconds())
	}
	return err.Error()
}

// serverMessage reads the error text a server put in its JSON body, if any.
func serverMessage(body []byte) string {
	fields, ok := decodeObject(bytes.TrimSpace(body))
	if !ok {
		return ""
	}
	if text, ok := decodeString(fields["message"]); ok {
		return strings.TrimSpace(text)
	}
	return ""
}
