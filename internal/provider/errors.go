package provider

import "errors"

// Provider failures are classified into these sentinels so the agent and
// the user-facing error messages do not depend on a backend's wire format.
var (
	ErrRateLimit      = errors.New("provider rate limited")
	ErrContextLength  = errors.New("context length exceeded")
	ErrProviderDown   = errors.New("provider unavailable")
	ErrAuthentication = errors.New("provider authentication failed")
	// ErrBadRequest covers everything else the backend refused: unknown
	// deployment, content filter, malformed tool schema.
	ErrBadRequest = errors.New("provider rejected request")
)

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
