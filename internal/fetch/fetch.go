// SPDX-License-Identifier: MPL-2.0

// Package fetch retrieves catalogs and archives over HTTPS. Plain HTTP
// sources, redirects to plain HTTP and TLS failures are reported as
// ErrInsecureSource so callers can tell them apart from "nothing new".
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxBytes bounds Get responses (32 MB).
	DefaultMaxBytes int64 = 32 << 20

	maxRedirects = 10
	tracerName   = "github.com/invowk/addonctl/internal/fetch"
)

var (
	// ErrInsecureSource is returned for sources that are not reached over
	// verified HTTPS.
	ErrInsecureSource = errors.New("insecure source")
	// ErrTooLarge is returned when a response exceeds the configured limit.
	ErrTooLarge = errors.New("response too large")
)

type (
	// Fetcher opens remote resources.
	Fetcher interface {
		// Open streams the resource at rawURL. The caller closes the body.
		Open(ctx context.Context, rawURL string) (*Body, error)
		// Get reads the whole resource at rawURL.
		Get(ctx context.Context, rawURL string) ([]byte, error)
	}

	// Body is an open response. Size is -1 when the server did not announce it.
	Body struct {
		io.ReadCloser
		Size int64
	}

	// InsecureSourceError describes why a source was rejected.
	InsecureSourceError struct {
		URL    string
		Reason string
		Err    error
	}

	// StatusError reports an unexpected HTTP status.
	StatusError struct {
		URL  string
		Code int
	}

	// Client is the HTTPS Fetcher.
	Client struct {
		httpClient *http.Client
		userAgent  string
		maxBytes   int64
		tracer     trace.Tracer
	}

	// Option configures a Client.
	Option func(*Client)
)

// Error implements the error interface.
func (e *InsecureSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("insecure source %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("insecure source %s: %s", e.URL, e.Reason)
}

// Unwrap returns ErrInsecureSource.
func (e *InsecureSourceError) Unwrap() error { return ErrInsecureSource }

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.Code)
}

// WithHTTPClient sets the underlying HTTP client. Tests pass the client of an
// httptest TLS server.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Client) { f.httpClient = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Client) { f.userAgent = ua }
}

// WithMaxBytes overrides DefaultMaxBytes for Get.
func WithMaxBytes(n int64) Option {
	return func(f *Client) { f.maxBytes = n }
}

// WithTracerProvider sets the provider used for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(f *Client) { f.tracer = tp.Tracer(tracerName) }
}

// New creates a Client. Defaults: http.DefaultClient, the global tracer
// provider, DefaultMaxBytes and a "addonctl/dev" user agent.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		userAgent:  "addonctl/dev",
		maxBytes:   DefaultMaxBytes,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Copy so that the redirect policy does not leak into a shared client.
	hc := *c.httpClient
	hc.CheckRedirect = checkRedirect
	c.httpClient = &hc
	return c
}

// Open implements Fetcher.
func (c *Client) Open(ctx context.Context, rawURL string) (_ *Body, err error) {
	ctx, span := c.tracer.Start(ctx, "fetch.Open", trace.WithAttributes(attribute.String("url", RedactURL(rawURL))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := CheckSecure(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close() // discarded response
		return nil, &StatusError{URL: RedactURL(rawURL), Code: resp.StatusCode}
	}

	span.SetAttributes(attribute.Int64("http.response.content_length", resp.ContentLength))
	return &Body{ReadCloser: resp.Body, Size: resp.ContentLength}, nil
}

// Get implements Fetcher. Responses above the configured limit fail with ErrTooLarge.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }() // read-only response body

	if body.Size > c.maxBytes {
		return nil, fmt.Errorf("%w: %s announces %d bytes", ErrTooLarge, RedactURL(rawURL), body.Size)
	}
	data, err := io.ReadAll(io.LimitReader(body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", RedactURL(rawURL), err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, RedactURL(rawURL), c.maxBytes)
	}
	return data, nil
}

// CheckSecure rejects URLs that do not use the https scheme.
func CheckSecure(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &InsecureSourceError{URL: RedactURL(rawURL), Reason: "unparsable URL", Err: err}
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return &InsecureSourceError{URL: RedactURL(rawURL), Reason: fmt.Sprintf("scheme %q is not https", u.Scheme)}
	}
	if u.Host == "" {
		return &InsecureSourceError{URL: RedactURL(rawURL), Reason: "missing host"}
	}
	return nil
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return CheckSecure(req.URL.String())
}

// classify maps transport failures caused by TLS verification to
// InsecureSourceError and keeps everything else as is.
func classify(rawURL string, err error) error {
	var insecure *InsecureSourceError
	if errors.As(err, &insecure) {
		return insecure
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalid          x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
		recordHeader     tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &unknownAuthority),
		errors.As(err, &hostname),
		errors.As(err, &invalid),
		errors.As(err, &verification):
		return &InsecureSourceError{URL: RedactURL(rawURL), Reason: "certificate verification failed", Err: err}
	case errors.As(err, &recordHeader):
		return &InsecureSourceError{URL: RedactURL(rawURL), Reason: "server does not speak TLS", Err: err}
	}
	return fmt.Errorf("fetching %s: %w", RedactURL(rawURL), err)
}

// RedactURL strips query parameters and fragments for safe inclusion in
// errors and logs.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}
