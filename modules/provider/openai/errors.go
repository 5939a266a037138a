package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/tgmcp/internal/provider"
)

// maxRetryAfter caps the server's Retry-After hint.
const maxRetryAfter = 30 * time.Second

// APIError is a non-2xx reply from the Chat Completions endpoint. It
// unwraps to the provider sentinel that classifies it, so callers use
// errors.Is with provider.ErrRateLimit and friends.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration

	kind error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: HTTP %d", e.kind, e.Status)
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if hint := azureHint[e.Code]; hint != "" {
		b.WriteString(" (" + hint + ")")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.kind }

var azureHint = map[string]string{
	"DeploymentNotFound": "the model name is the Azure deployment",
	"content_filter":     "blocked by content filter",
}

// newAPIError decodes an error reply. Bodies that are not the usual
// {"error":{...}} envelope are kept verbatim as the message.
func newAPIError(status int, header http.Header, body []byte) *APIError {
	e := &APIError{Status: status, RetryAfter: parseRetryAfter(header.Get("Retry-After"))}
	var env apiError
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		e.Message, e.Code = env.Error.Message, env.Error.Code
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	e.kind = classify(status, e.Code, e.Message)
	return e
}

func classify(status int, code, msg string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return provider.ErrRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return provider.ErrAuthentication
	case status == http.StatusBadRequest && isContextLength(code, msg):
		return provider.ErrContextLength
	case status >= 500:
		return provider.ErrProviderDown
	case status >= 400:
		return provider.ErrBadRequest
	default:
		return errors.New("openai: unexpected status")
	}
}

func isContextLength(code, msg string) bool {
	if code == "context_length_exceeded" {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "context_length") || strings.Contains(lower, "maximum context length")
}

// parseRetryAfter reads delay-seconds; HTTP dates are not sent by the
// OpenAI or Azure endpoints and are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

// transportError classifies a failed round trip. Cancellation passes
// through untouched so the agent can tell it from an outage.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("openai: %w", err)
}
