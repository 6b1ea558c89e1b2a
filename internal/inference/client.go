package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tphakala/cedar-go/internal/annotation"
	"github.com/tphakala/cedar-go/internal/codec"
	"github.com/tphakala/cedar-go/internal/errors"
	"github.com/tphakala/cedar-go/internal/httpclient"
	"github.com/tphakala/cedar-go/internal/logger"
	"github.com/tphakala/cedar-go/internal/observability/metrics"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

// Codec decodes service replies and persists whole-image results.
// *codec.Codec implements it.
type Codec interface {
	DecodeFeatureCollection(data []byte) ([]*annotation.Annotation, error)
	Save(path string, anns []*annotation.Annotation) error
}

// Client talks to the segmentation service. It is safe for concurrent use.
type Client struct {
	config  Config
	http    *httpclient.Client
	codec   Codec
	cache   *cache.Cache
	limiter *rate.Limiter
	log     logger.Logger
	metrics metrics.Recorder
}

// New creates a client. The endpoint must be an absolute http(s) URL.
func New(cfg Config, hc *httpclient.Client, c Codec, log logger.Logger, rec metrics.Recorder) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("inference endpoint must be an http(s) URL: %q", cfg.Endpoint).
			Component("inference").
			Category(errors.CategoryConfiguration).
			Build()
	}

	defaults := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	if hc == nil {
		hc = httpclient.New(&httpclient.Config{DefaultTimeout: cfg.Timeout}, log)
	}

	client := &Client{
		config:  cfg,
		http:    hc,
		codec:   c,
		cache:   cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		log:     log.Module("inference"),
		metrics: metrics.OrNoOp(rec),
	}
	client.log.Info("inference client initialized",
		logger.String("endpoint", u.Redacted()),
		logger.String("model", cfg.Model),
		logger.Duration("cache_ttl", cfg.CacheTTL),
		logger.Float64("rate_limit", cfg.RateLimit))
	return client, nil
}

// Model returns the model requested from the service.
func (c *Client) Model() string {
	return c.config.Model
}

// Infer runs req. Region results are translated from region-local to image
// coordinates and returned; whole-image results are also saved to
// AnnotationDir/<stem>.geojson. Identical requests within the cache TTL
// return fresh copies of the same annotations, identities included,
// without contacting the service.
func (c *Client) Infer(ctx context.Context, req Request) (*Result, error) {
	if req.ImageFile == "" {
		return nil, errors.Newf("inference needs an image file").
			Component("inference").
			Category(errors.CategoryValidation).
			Build()
	}
	if req.Region != nil && req.Region.IsEmpty() {
		return nil, errors.Newf("inference region has no area: %+v", *req.Region).
			Component("inference").
			Category(errors.CategoryValidation).
			Build()
	}

	key := c.cacheKey(req)
	if cached, found := c.cache.Get(key); found {
		if res, ok := cached.(*Result); ok {
			c.metrics.RecordOperation(metrics.OpInfer, metrics.StatusCached)
			c.log.Debug("inference cache hit",
				logger.String("image", req.ImageFile),
				logger.Int("annotations", len(res.Annotations)))
			return &Result{Annotations: annotation.CloneAll(res.Annotations), Path: res.Path, Cached: true}, nil
		}
	}

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.fail(errors.New(err).
			Component("inference").
			Category(errors.CategoryNetwork).
			Context("stage", "rate_limit").
			Build())
	}

	data, err := c.post(ctx, req)
	if err != nil {
		return nil, c.fail(err)
	}

	anns, err := c.codec.DecodeFeatureCollection(data)
	if err != nil {
		return nil, c.fail(err)
	}

	res := &Result{Annotations: anns}
	if req.Region != nil {
		dx, dy := req.Region.origin()
		for _, a := range anns {
			a.Object.Geometry = a.Object.Geometry.Translate(dx, dy)
		}
	} else {
		res.Path = filepath.Join(req.AnnotationDir, codec.Stem(req.ImageFile)+codec.ExtGeoJSON)
		if err := c.codec.Save(res.Path, anns); err != nil {
			return nil, c.fail(err)
		}
	}

	// The caller owns res; the cache keeps its own copy so later edits to
	// the returned records never leak into a repeated request.
	c.cache.Set(key, &Result{Annotations: annotation.CloneAll(anns), Path: res.Path}, cache.DefaultExpiration)
	c.metrics.RecordOperation(metrics.OpInfer, metrics.StatusSuccess)
	c.metrics.RecordDuration(metrics.OpInfer, time.Since(start).Seconds())
	c.log.Info("inference completed",
		logger.String("image", req.ImageFile),
		logger.Bool("region", req.Region != nil),
		logger.Int("annotations", len(anns)),
		logger.Duration("elapsed", time.Since(start)))
	return res, nil
}

// post sends the multipart request and returns the response body.
func (c *Client) post(ctx context.Context, req Request) ([]byte, error) {
	endpoint := c.requestURL(req.ImageFile)
	body, err := json.Marshal(map[string]any{"params": params(req)})
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryValidation).
			Build()
	}
	c.log.Debug("inference request",
		logger.String("url", endpoint),
		logger.String("body", string(body)))

	resp, err := c.http.PostMultipart(ctx, endpoint, map[string]string{"wsi": string(body)})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.Newf("inference service returned %s", resp.Status).
			Component("inference").
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Context("body", strings.TrimSpace(string(snippet))).
			Build()
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryNetwork).
			Context("stage", "read_body").
			Build()
	}
	return data, nil
}

func (c *Client) requestURL(image string) string {
	q := url.Values{}
	q.Set("output", "asap")
	q.Set("image", image)
	return strings.TrimRight(c.config.Endpoint, "/") +
		"/infer/wsi_v2/" + url.PathEscape(c.config.Model) + "?" + q.Encode()
}

func params(req Request) map[string]any {
	p := map[string]any{
		"src_image_dir":  req.ImageDir,
		"src_image_file": req.ImageFile,
		"annotation_dir": req.AnnotationDir,
	}
	if r := req.Region; r != nil {
		x, y := r.origin()
		p["location"] = []int{int(x), int(y)}
		p["size"] = []int{int(math.Ceil(r.Width)), int(math.Ceil(r.Height))}
	}
	return p
}

func (c *Client) cacheKey(req Request) string {
	key := fmt.Sprintf("%s|%s|%s|%s", c.config.Model, req.ImageDir, req.ImageFile, req.AnnotationDir)
	if r := req.Region; r != nil {
		key += fmt.Sprintf("|%g,%g,%g,%g", r.X, r.Y, r.Width, r.Height)
	}
	return key
}

// Forget drops cached results, for instance after the image's annotations
// were replaced.
func (c *Client) Forget() {
	c.cache.Flush()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

func (c *Client) fail(err error) error {
	var category string
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		category = ee.GetCategory()
	}
	c.metrics.RecordOperation(metrics.OpInfer, metrics.StatusError)
	c.metrics.RecordError(metrics.OpInfer, category)
	c.log.Error("inference failed", logger.Error(err))
	return err
}
