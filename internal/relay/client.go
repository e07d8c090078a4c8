package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second

	// Responses larger than this are cut off; covers full-resolution
	// Tumblr photos with ample headroom.
	maxResponseBytes = 32 << 20
)

// Fetcher is the read-only fetch capability the pipeline consumes for
// source-platform requests. Implementations must never attach
// credentials to outgoing requests.
type Fetcher interface {
	// Fetch retrieves the target URL and returns the body bytes and the
	// Content-Type header (may be empty).
	Fetch(ctx context.Context, target string) ([]byte, string, error)
}

// Client fetches source-platform URLs, optionally through a CORS relay
// that forwards the request verbatim. Requests are restricted to an
// allow-list of hostnames so the relay capability cannot be used to
// reach arbitrary destinations.
type Client struct {
	httpClient   *http.Client
	relayURL     string // Empty means fetch directly
	allowedHosts map[string]bool
	userAgent    string
}

// NewClient creates a relay client. relayURL may be empty for direct
// fetches; allowedHosts restricts which hostnames may be requested.
// Subdomains of an allowed host are allowed too.
func NewClient(relayURL string, allowedHosts []string) *Client {
	allowed := make(map[string]bool, len(allowedHosts))
	for _, h := range allowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			allowed[h] = true
		}
	}
	return &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		relayURL:     strings.TrimRight(relayURL, "/"),
		allowedHosts: allowed,
		userAgent:    "Mozilla/5.0 (compatible; LeafletImporter/1.0)",
	}
}

// Fetch retrieves the target URL through the relay (or directly when no
// relay is configured). Non-2xx responses and oversized bodies are errors.
func (c *Client) Fetch(ctx context.Context, target string) ([]byte, string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, "", fmt.Errorf("invalid target URL %q: %w", target, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme %q in %q", parsed.Scheme, target)
	}
	if !c.hostAllowed(parsed.Hostname()) {
		return nil, "", &HostNotAllowedError{Host: parsed.Hostname()}
	}

	requestURL := target
	if c.relayURL != "" {
		requestURL = c.relayURL + "?url=" + url.QueryEscape(target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &TransientError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, "", &TransientError{URL: target, Err: fmt.Errorf("server returned HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: unexpected status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, "", &TransientError{URL: target, Err: err}
	}
	if len(body) > maxResponseBytes {
		return nil, "", fmt.Errorf("fetch %s: response exceeds %d bytes", target, maxResponseBytes)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	if c.allowedHosts[host] {
		return true
	}
	for allowed := range c.allowedHosts {
		if strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
