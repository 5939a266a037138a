package web

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

	"github.com/flemzord/tgmcp/internal/security"
	"github.com/flemzord/tgmcp/internal/tool"
)

// ErrStatus is returned for non-2xx upstream responses.
var ErrStatus = errors.New("web: unexpected status")

// fetcher performs the outbound HTTP calls of every tool in this package.
// Requests to model-chosen URLs go through guarded, which re-checks the
// filter on every redirect and refuses to dial private addresses.
type fetcher struct {
	client    *http.Client
	guarded   *http.Client
	filter    *security.URLFilter
	userAgent string
	maxBody   int64
}

func newFetcher(cfg Config) *fetcher {
	filter := security.NewURLFilter(cfg.URLFilter)
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second, Control: filter.DialControl}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil

	guarded := &http.Client{
		Timeout:       cfg.Timeout,
		Transport:     transport,
		CheckRedirect: filter.CheckRedirect,
	}
	return &fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		guarded:   guarded,
		filter:    filter,
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
	}
}

// page is a fetched document.
type page struct {
	URL         string
	ContentType string
	Body        []byte
}

// get fetches rawURL after checking it against the URL filter.
func (f *fetcher) get(ctx context.Context, rawURL string) (*page, error) {
	client := f.client
	if f.filter != nil {
		if err := f.filter.Check(rawURL); err != nil {
			return nil, err
		}
		client = f.guarded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("web: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web: fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("web: read %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: %s", ErrStatus, resp.Status, snippet(body))
	}
	return &page{URL: resp.Request.URL.String(), ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
}

// postJSON sends payload as JSON and decodes the response into out.
func (f *fetcher) postJSON(ctx context.Context, rawURL string, header http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("web: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("web: build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("web: post %s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return fmt.Errorf("web: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: %s", ErrStatus, resp.Status, snippet(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("web: decode response: %w", err)
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(bytes.ToValidUTF8(b, []byte("?"))))
	return tool.TruncateOutput(s, 300)
}
