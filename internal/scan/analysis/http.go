package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"confirmit/internal/scan/models"
	"confirmit/pkg/platform/circuit"
)

const maxResponseBytes = 1 << 20

// HTTPAnalyzer calls an analysis service exposing POST /analyze-receipt.
// It is safe for concurrent use.
type HTTPAnalyzer struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

type HTTPOption func(*HTTPAnalyzer)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAnalyzer) {
		a.httpClient = c
	}
}

func WithBreaker(b *circuit.Breaker) HTTPOption {
	return func(a *HTTPAnalyzer) {
		a.breaker = b
	}
}

func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(a *HTTPAnalyzer) {
		a.logger = logger
	}
}

func NewHTTP(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPAnalyzer {
	a := &HTTPAnalyzer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
		breaker:    circuit.New("analysis-oracle"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type analyzeRequest struct {
	ImageURL         string `json:"image_url"`
	IncludeForensics bool   `json:"include_forensics"`
	CheckReputation  bool   `json:"check_reputation"`
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, req Request) (*models.Analysis, error) {
	if !a.breaker.Allow() {
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	result, err := a.do(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			if _, change := a.breaker.RecordFailure(); change.Opened {
				a.logger.WarnContext(ctx, "analysis oracle circuit opened", "breaker", a.breaker.Name())
			}
		}
		return nil, err
	}
	if _, change := a.breaker.RecordSuccess(); change.Closed {
		a.logger.InfoContext(ctx, "analysis oracle circuit closed", "breaker", a.breaker.Name())
	}
	return result, nil
}

func (a *HTTPAnalyzer) do(ctx context.Context, req Request) (*models.Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	body, err := json.Marshal(analyzeRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/analyze-receipt", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRejected, resp.StatusCode)
	}

	var r result
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	analysis, err := r.normalize()
	if err != nil {
		return nil, err
	}
	if analysis.ProcessingTimeMS == 0 {
		analysis.ProcessingTimeMS = time.Since(start).Milliseconds()
	}
	return analysis, nil
}
