package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

// maxRedirects matches the net/http default.
const maxRedirects = 10

// ErrURLBlocked is returned when a URL is denied by the filter.
var ErrURLBlocked = errors.New("URL blocked by filter")

// URLFilterConfig holds the configuration for URL filtering.
type URLFilterConfig struct {
	// AllowDomains restricts fetches to these domains and their
	// subdomains. Empty allows every public host.
	AllowDomains []string `yaml:"allow_domains"`

	// DenyDomains always wins over AllowDomains.
	DenyDomains []string `yaml:"deny_domains"`

	// AllowPrivate permits loopback and private network addresses.
	AllowPrivate bool `yaml:"allow_private"`
}

// URLFilter guards the URLs the web tools fetch on the model's behalf.
type URLFilter struct {
	allow        []string
	deny         []string
	allowPrivate bool
	lookup       func(host string) ([]net.IP, error)
}

// NewURLFilter creates a URL filter from the given config.
func NewURLFilter(cfg URLFilterConfig) *URLFilter {
	return &URLFilter{
		allow:        normalizeDomains(cfg.AllowDomains),
		deny:         normalizeDomains(cfg.DenyDomains),
		allowPrivate: cfg.AllowPrivate,
		lookup:       net.LookupIP,
	}
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Check returns nil when rawURL may be fetched.
func (f *URLFilter) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %w", ErrURLBlocked, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrURLBlocked, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty hostname", ErrURLBlocked)
	}

	for _, d := range f.deny {
		if matchDomain(host, d) {
			return fmt.Errorf("%w: %s (denied)", ErrURLBlocked, host)
		}
	}

	if len(f.allow) > 0 {
		allowed := false
		for _, a := range f.allow {
			if matchDomain(host, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s (not in allow list)", ErrURLBlocked, host)
		}
	}

	if f.allowPrivate {
		return nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %s (private address)", ErrURLBlocked, host)
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		resolved, err := f.lookup(host)
		if err != nil {
			// Unresolvable hosts fail later at dial time.
			return nil
		}
		ips = resolved
	}
	for _, ip := range ips {
		if isPrivate(ip) {
			return fmt.Errorf("%w: %s (private address)", ErrURLBlocked, host)
		}
	}
	return nil
}

// CheckRedirect is an http.Client CheckRedirect hook applying Check to
// every hop, so an allowed URL cannot bounce the client to a blocked one.
func (f *URLFilter) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return f.Check(req.URL.String())
}

// DialControl is a net.Dialer Control hook refusing connections to private
// addresses. It checks the address actually dialed, which Check cannot do
// when a hostname resolves differently at connect time.
func (f *URLFilter) DialControl(_, address string, _ syscall.RawConn) error {
	if f.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrURLBlocked, err)
	}
	if ip := net.ParseIP(host); ip == nil || isPrivate(ip) {
		return fmt.Errorf("%w: %s (private address)", ErrURLBlocked, host)
	}
	return nil
}

func isPrivate(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// matchDomain checks if host equals domain or is one of its subdomains.
func matchDomain(host, domain string) bool {
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}
