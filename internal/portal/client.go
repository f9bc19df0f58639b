package portal

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

const (
	DefaultBaseURL = "https://cfe.sefaz.ce.gov.br:8443/portalcfews"

	// DefaultTimeout is the per-request timeout when Config.Timeout is not set
	DefaultTimeout = 30 * time.Second

	maxResponseSize = 20 << 20
)

// Observer receives the outcome and duration of each upstream call (e.g. metrics)
type Observer interface {
	ObserveUpstream(upstream, outcome string, elapsed time.Duration)
}

// Config for the portal client
type Config struct {
	// BaseURL is the portal API root, e.g. https://cfe.sefaz.ce.gov.br:8443/portalcfews
	BaseURL string

	Timeout time.Duration

	Observer Observer

	// Now is used for credential pre-flight checks (default time.Now)
	Now func() time.Time
}

// Client is safe for concurrent use
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
	now        func() time.Time
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid portal base URL %q", cfg.BaseURL)
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:   logger,
		observer: cfg.Observer,
		now:      cfg.Now,
	}, nil
}

// Host returns the portal host name, used to recognise portal URLs pasted by users
func (c *Client) Host() string {
	return c.baseURL.Hostname()
}

// preflight rejects tokens that are malformed or already expired without calling the portal
func (c *Client) preflight(token string) error {
	if _, err := credential.Validate(token, c.now()); err != nil {
		return nfce.WrapCredentialRejectedError(err, "bearer credential rejected before calling the portal")
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

// do sends req and returns the status code and (size limited) body
func (c *Client) do(req *http.Request, upstream string) (int, []byte, error) {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(upstream, "transport_error", start)
		return 0, nil, nfce.WrapUnexpectedStatusError(err, "portal request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.observe(upstream, "transport_error", start)
		return resp.StatusCode, nil, nfce.WrapUnexpectedStatusError(err, "failed to read portal response")
	}

	c.observe(upstream, statusOutcome(resp.StatusCode), start)
	return resp.StatusCode, body, nil
}

func (c *Client) observe(upstream, outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(upstream, outcome, time.Since(start))
	}
}

func statusOutcome(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status == http.StatusNotFound:
		return "not_found"
	default:
		return "http_error"
	}
}

// statusError maps the non-success statuses shared by both endpoints
func statusError(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return nfce.NewCredentialRejectedError("portal rejected the bearer credential (HTTP 401)")
	case http.StatusNotFound:
		return nfce.NewDocumentNotFoundError("document not found on the portal (HTTP 404)")
	}
	return nfce.NewUnexpectedStatusError(status, fmt.Sprintf("portal returned HTTP %d: %s", status, snippet(body)))
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
