package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// maxAttempts includes the first try; only flood-control replies
	// (HTTP 429) are retried.
	maxAttempts      = 3
	initialBackoff   = time.Second
	maxResponseBytes = 10 << 20
	maxDownloadBytes = 20 << 20
)

// Client talks to the Bot API over plain HTTPS.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

func NewClient(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// requestBody encodes a request. It is called once per attempt since a
// reader cannot be replayed.
type requestBody func() (r io.Reader, contentType string, err error)

func jsonBody(payload any) requestBody {
	if payload == nil {
		return nil
	}
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func do[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	return call[T](ctx, c, method, jsonBody(payload))
}

// call invokes a Bot API method and unwraps its result. A 429 is retried
// after the retry_after the API asks for, or an exponential backoff when
// it gives none; every other failure is returned at once.
func call[T any](ctx context.Context, c *Client, method string, body requestBody) (*T, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialBackoff
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	wait := &floodWait{BackOff: backoff.WithMaxRetries(exp, maxAttempts-1)}

	var result *T
	err := backoff.Retry(func() error {
		status, raw, err := c.post(ctx, method, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		var env APIResponse[T]
		if err := json.Unmarshal(raw, &env); err != nil {
			return backoff.Permanent(fmt.Errorf("telegram: decode %s response: %w", method, err))
		}
		if env.OK {
			result = &env.Result
			return nil
		}
		apiErr := &APIError{Code: env.ErrorCode, Description: env.Description}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		if status != http.StatusTooManyRequests {
			return backoff.Permanent(apiErr)
		}
		wait.retryAfter = time.Duration(apiErr.RetryAfter) * time.Second
		return apiErr
	}, backoff.WithContext(wait, ctx))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// floodWait lets the API's retry_after override the computed delay.
type floodWait struct {
	backoff.BackOff
	retryAfter time.Duration
}

func (f *floodWait) NextBackOff() time.Duration {
	next := f.BackOff.NextBackOff()
	if next != backoff.Stop && f.retryAfter > 0 {
		next, f.retryAfter = f.retryAfter, 0
	}
	return next
}

func (c *Client) post(ctx context.Context, method string, body requestBody) (int, []byte, error) {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		r, ct, err := body()
		if err != nil {
			return 0, nil, fmt.Errorf("telegram: encode %s request: %w", method, err)
		}
		reader, contentType = r, ct
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("telegram: read %s response: %w", method, err)
	}
	return resp.StatusCode, raw, nil
}
