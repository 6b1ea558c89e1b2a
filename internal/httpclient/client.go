// Package httpclient provides the HTTP client used to talk to the remote
// segmentation service: per-request deadlines, a pooled transport, a fixed
// User-Agent and request logging.
package httpclient

import (
	"bytes"
	"context"
	"io"
	"maps"
	"mime/multipart"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/logger"
)

const (
	// DefaultTimeout applies when the request context has no deadline.
	// Whole-slide inference is slow, so this is generous.
	DefaultTimeout = 5 * time.Minute

	defaultMaxIdleConnsPerHost = 4
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultDialTimeout         = 30 * time.Second
	defaultDialKeepAlive       = 30 * time.Second

	defaultUserAgent = "cedar-go"
)

// Client wraps http.Client. It is safe for concurrent use.
type Client struct {
	client         *http.Client
	defaultTimeout time.Duration
	userAgent      string
	log            logger.Logger
}

// Config holds configuration for creating an HTTP client.
type Config struct {
	// DefaultTimeout is applied if the request context has no deadline.
	DefaultTimeout time.Duration

	// UserAgent is added to all requests.
	UserAgent string
}

// DefaultConfig returns the defaults used when New receives nil.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: DefaultTimeout,
		UserAgent:      defaultUserAgent,
	}
}

// New creates a client. cfg may be nil and is not modified.
func New(cfg *Config, log logger.Logger) *Client {
	var c Config
	if cfg == nil {
		c = DefaultConfig()
	} else {
		c = *cfg
		if c.DefaultTimeout == 0 {
			c.DefaultTimeout = DefaultTimeout
		}
		if c.UserAgent == "" {
			c.UserAgent = defaultUserAgent
		}
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
	}

	return &Client{
		client:         &http.Client{Transport: transport},
		defaultTimeout: c.DefaultTimeout,
		userAgent:      c.UserAgent,
		log:            log.Module("httpclient"),
	}
}

// HTTPClient exposes the underlying client, for instance to install a mock
// transport in tests.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Do executes req under ctx. If ctx has no deadline the default timeout is
// applied. The response body must be closed by the caller if err is nil.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.Newf("nil request").
			Component("httpclient").
			Category(errors.CategoryValidation).
			Build()
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
		req = req.WithContext(ctx)
		resp, err := c.do(req)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return c.do(req.WithContext(ctx))
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("http request failed",
			logger.String("method", req.Method),
			logger.String("url", req.URL.Redacted()),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err))
		return nil, errors.New(err).
			Component("httpclient").
			Category(errors.CategoryNetwork).
			Context("url", req.URL.Redacted()).
			Build()
	}
	c.log.Debug("http request completed",
		logger.String("method", req.Method),
		logger.String("url", req.URL.Redacted()),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// PostMultipart posts fields as a multipart/form-data body. The segmentation
// service takes its request document this way.
func (c *Client) PostMultipart(ctx context.Context, url string, fields map[string]string) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if err := mw.WriteField(name, fields[name]); err != nil {
			return nil, requestError(err, url)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, requestError(err, url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, requestError(err, url)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.Do(ctx, req)
}

// Close closes idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

func requestError(err error, url string) error {
	return errors.New(err).
		Component("httpclient").
		Category(errors.CategoryValidation).
		Context("url", url).
		Build()
}

// cancelOnClose releases the timeout context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}
