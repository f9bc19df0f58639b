package sefaz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

const (
	// DefaultTimeout is the per-request timeout when Config.Timeout is not set
	DefaultTimeout = 30 * time.Second

	maxResponseSize = 10 << 20
)

// Observer receives the outcome and duration of each upstream call (e.g. metrics)
type Observer interface {
	ObserveUpstream(upstream, outcome string, elapsed time.Duration)
}

// Config for the SOAP client
type Config struct {
	Environment Environment

	// URL overrides the environment's default endpoint
	URL string

	Timeout time.Duration

	// TLS is the server trust policy. The client certificate comes from the material passed to NewClient.
	TLS crypto.TLSOptions

	Observer Observer
}

// Client calls NfeConsulta4 with one taxpayer certificate
type Client struct {
	httpClient *http.Client
	url        string
	env        Environment
	logger     *slog.Logger
	observer   Observer
}

// NewClient builds a mutual-TLS client presenting material as the client certificate.
// Returns an error with code nfce.ErrCodeCertificate when the material cannot be loaded.
func NewClient(cfg Config, material *crypto.CertificateMaterial, logger *slog.Logger) (*Client, error) {
	if material == nil {
		return nil, nfce.NewCertificateError("a digital certificate is required for the SOAP service")
	}
	if cfg.Environment == "" {
		cfg.Environment = Production
	}
	if cfg.URL == "" {
		cfg.URL = cfg.Environment.DefaultURL()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	tlsConfig, err := crypto.NewClientTLSConfig(material, cfg.TLS)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			TLSClientConfig:     tlsConfig,
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        2,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: cfg.Timeout,
		},
	}

	return &Client{
		httpClient: httpClient,
		url:        cfg.URL,
		env:        cfg.Environment,
		logger:     logger,
		observer:   cfg.Observer,
	}, nil
}

// Consult asks the authority for the situation of key.
//
// Network, TLS and timeout failures return an error with code nfce.ErrCodeSoapTransport and a nil Result.
// A non-2xx response that carries no recognizable fields is also a transport error (the Result is still returned).
// A response without protocol number or fragment is not an error: the caller decides what to do with it.
func (c *Client) Consult(ctx context.Context, key nfce.DocumentKey) (*Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(BuildConsultaEnvelope(key, c.env)))
	if err != nil {
		return nil, nfce.WrapInternalError(err, "failed to create SOAP request")
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("Accept", "application/soap+xml, text/xml, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("transport_error", start)
		return nil, nfce.WrapSoapTransportError(err, "SOAP request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.observe("transport_error", start)
		return nil, nfce.WrapSoapTransportError(err, "failed to read SOAP response")
	}

	result := ExtractResult(string(body))
	result.HTTPStatus = resp.StatusCode

	c.logger.Debug("SOAP consultation",
		slog.String("key", key.String()),
		slog.Int("http_status", resp.StatusCode),
		slog.String("cstat", result.StatusCode),
		slog.String("xmotivo", result.Reason),
		slog.Bool("has_protocol", result.ProtocolNumber != ""),
		slog.String("fragment", string(result.FragmentKind)),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if result.StatusCode == "" && result.DocumentXML() == "" {
			c.observe("http_error", start)
			return result, nfce.NewSoapTransportError(fmt.Sprintf("SOAP endpoint returned HTTP %d", resp.StatusCode))
		}
	}

	c.observe("ok", start)
	return result, nil
}

func (c *Client) observe(outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream("sefaz", outcome, time.Since(start))
	}
}
