// Package predictor talks to the external prediction service.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/internal/domain/types"
	"github.com/okian/agropredict/pkg/logger"
	"github.com/okian/agropredict/pkg/metrics"
)

// Collaborator catalog endpoints.
const (
	ModelsPath       = "/api/astragalus/models"
	ModelMetricsPath = "/api/astragalus/model-metrics"
)

// RequestIDHeader carries the per-call correlation id.
const RequestIDHeader = "X-Request-ID"

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
	outcomeOK      = "ok"
)

// Client is the model invoker. It is safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  logger.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("predictor")
	}
	return c, nil
}

// Invoke sends req and classifies the outcome. ok is false when ctx was
// cancelled before the response was read; no result exists in that case.
func (c *Client) Invoke(ctx context.Context, req model.Request) (model.ModelResult, bool) {
	if ctx.Err() != nil {
		return model.ModelResult{}, false
	}
	start := time.Now()
	res, ok := c.invoke(ctx, req, start)
	if !ok {
		return model.ModelResult{}, false
	}

	outcome := outcomeOK
	if !res.OK() {
		outcome = string(res.Kind)
		metrics.RecordErrorByComponent("predictor", outcome)
	}
	metrics.RecordInvocation(string(req.ModelID), outcome)
	metrics.RecordInvocationLatency(string(req.Domain), res.Elapsed.Seconds())
	return res, true
}

func (c *Client) invoke(ctx context.Context, req model.Request, start time.Time) (model.ModelResult, bool) {
	id := req.ModelID
	body, err := json.Marshal(req.Body)
	if err != nil {
		return model.Failure(id, model.KindValidation, err.Error(), 0), true
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+req.Path, bytes.NewReader(body))
	if err != nil {
		return model.Failure(id, model.KindNetwork, err.Error(), 0), true
	}
	rid := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, rid)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.transportFailure(ctx, callCtx, id, err, time.Since(start))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.transportFailure(ctx, callCtx, id, err, time.Since(start))
	}
	if ctx.Err() != nil {
		return model.ModelResult{}, false
	}

	res := interpret(id, resp.StatusCode, raw, time.Since(start))
	if !res.OK() {
		c.logger.Debug(ctx, "model call failed",
			logger.String("model", string(id)),
			logger.String("request_id", rid),
			logger.Int("status", resp.StatusCode),
			logger.String("kind", string(res.Kind)),
			logger.String("message", res.Message),
		)
	}
	return res, true
}

func (c *Client) transportFailure(parent, call context.Context, id model.ModelID, err error, elapsed time.Duration) (model.ModelResult, bool) {
	if parent.Err() != nil {
		return model.ModelResult{}, false
	}
	var ne net.Error
	if errors.Is(call.Err(), context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return model.Failure(id, model.KindTimeout, fmt.Sprintf("no response within %s", c.timeout), elapsed), true
	}
	return model.Failure(id, model.KindNetwork, err.Error(), elapsed), true
}

// interpret classifies a response body. The payload is kept opaque; only
// the error and confidence fields are inspected.
func interpret(id model.ModelID, status int, raw []byte, elapsed time.Duration) model.ModelResult {
	if status < 200 || status > 299 {
		msg := http.StatusText(status)
		if e := gjson.GetBytes(raw, "error"); e.Exists() && e.String() != "" {
			msg = e.String()
		}
		return model.Failure(id, model.KindServiceError, fmt.Sprintf("status %d: %s", status, msg), elapsed)
	}
	if !gjson.ValidBytes(raw) {
		return model.Failure(id, model.KindServiceError, "response is not valid JSON", elapsed)
	}
	if e := gjson.GetBytes(raw, "error"); e.Exists() && e.Type != gjson.Null {
		return model.Failure(id, model.KindServiceError, e.String(), elapsed)
	}

	conf := gjson.GetBytes(raw, "confidence")
	if conf.Type != gjson.Number {
		return model.Failure(id, model.KindServiceError, "response has no numeric confidence", elapsed)
	}
	v := conf.Float()
	if math.IsNaN(v) || v < 0 || v > 1 {
		return model.Failure(id, model.KindServiceError, fmt.Sprintf("confidence %v outside [0,1]", v), elapsed)
	}
	return model.Success(id, append(json.RawMessage(nil), raw...), v, elapsed)
}

// Models fetches the growth model catalog.
func (c *Client) Models(ctx context.Context) (types.Catalog, error) {
	var cat types.Catalog
	raw, err := c.get(ctx, ModelsPath)
	if err != nil {
		return cat, err
	}
	if err := json.Unmarshal(raw, &cat); err != nil {
		return cat, fmt.Errorf("%w: decode models: %w", ErrCatalog, err)
	}
	return cat, nil
}

// ModelMetrics fetches the model comparison table. Both a bare array and
// an object with a "metrics" array are accepted.
func (c *Client) ModelMetrics(ctx context.Context) ([]types.ModelMetric, error) {
	raw, err := c.get(ctx, ModelMetricsPath)
	if err != nil {
		return nil, err
	}
	rows := gjson.GetBytes(raw, "metrics")
	if !rows.Exists() {
		rows = gjson.ParseBytes(raw)
	}
	if !rows.IsArray() {
		return nil, fmt.Errorf("%w: model metrics is not a list", ErrCatalog)
	}
	var out []types.ModelMetric
	if err := json.Unmarshal([]byte(rows.Raw), &out); err != nil {
		return nil, fmt.Errorf("%w: decode model metrics: %w", ErrCatalog, err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrCatalog, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrCatalog, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrCatalog, path, resp.StatusCode)
	}
	if e := gjson.GetBytes(raw, "error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("%w: GET %s: %s", ErrCatalog, path, e.String())
	}
	return raw, nil
}
