// Package classifier adapts remote expression classifiers to the pipeline.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/learnpath/internal/domain/model"
	"github.com/okian/learnpath/pkg/logger"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// HTTPClassifier posts each frame's bytes to an inference endpoint and
// decodes the returned expression distribution. Two response shapes are
// understood: an object mapping label to probability, and a list of
// {"label", "score"} pairs as image-classification servers return them.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	logger   logger.Logger
}

// NewHTTPClassifier validates endpoint and builds a classifier.
func NewHTTPClassifier(endpoint string, opts ...Option) (*HTTPClassifier, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	c := &HTTPClassifier{
		endpoint: u.String(),
		timeout:  defaultTimeout,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// Classify sends one frame for classification.
func (c *HTTPClassifier) Classify(ctx context.Context, frame model.Frame) (model.Observation, error) {
	const op = "classifier.http"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(frame.Data))
	if err != nil {
		return nil, model.WrapKind(op, model.ErrClassification, err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(frame.Data))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Frame-Seq", strconv.Itoa(frame.Seq))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, model.WrapKind(op, model.ErrClassification, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, model.WrapKind(op, model.ErrClassification, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn(ctx, "classifier rejected frame",
			logger.Int("seq", frame.Seq),
			logger.Int("status", resp.StatusCode),
		)
		return nil, model.Errorf(op, model.ErrClassification, "%w: status %d: %s", ErrUpstream, resp.StatusCode, truncate(body, 200))
	}

	obs, err := decodeObservation(body)
	if err != nil {
		return nil, model.WrapKind(op, model.ErrClassification, err)
	}
	return obs, nil
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func decodeObservation(body []byte) (model.Observation, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDecode)
	}

	switch body[0] {
	case '{':
		var obs model.Observation
		if err := json.Unmarshal(body, &obs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return obs, nil
	case '[':
		var pairs []labelScore
		if err := json.Unmarshal(body, &pairs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		obs := make(model.Observation, len(pairs))
		for _, p := range pairs {
			if p.Label == "" {
				return nil, fmt.Errorf("%w: entry without label", ErrDecode)
			}
			obs[p.Label] = p.Score
		}
		return obs, nil
	default:
		return nil, fmt.Errorf("%w: unexpected body", ErrDecode)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
