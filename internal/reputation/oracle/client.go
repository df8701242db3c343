// Package oracle calls the external reputation oracle over HTTP.
package oracle

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

	"confirmit/internal/reputation/models"
	"confirmit/pkg/platform/circuit"
	pstrings "confirmit/pkg/platform/strings"
)

const maxResponseBytes = 1 << 20

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) {
		cl.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
		breaker:    circuit.New("reputation-oracle"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type checkRequest struct {
	AccountHash  string `json:"account_hash"`
	BankCode     string `json:"bank_code,omitempty"`
	BusinessName string `json:"business_name,omitempty"`
}

type checkResponse struct {
	TrustScore   *int   `json:"trust_score"`
	RiskLevel    string `json:"risk_level"`
	FraudReports struct {
		Total        int `json:"total"`
		Recent30Days int `json:"recent_30_days"`
	} `json:"fraud_reports"`
	VerifiedBusinessID string   `json:"verified_business_id"`
	Flags              []string `json:"flags"`
}

// Check asks the oracle to score a subject. A call is bounded by the client
// timeout unless ctx expires sooner.
func (c *Client) Check(ctx context.Context, q models.Query) (*models.Assessment, error) {
	if !c.breaker.Allow() {
		return nil, newError(ErrorCircuitOpen, "circuit open", nil)
	}

	assessment, err := c.do(ctx, q)
	if err != nil {
		if tripsBreaker(err) {
			if _, change := c.breaker.RecordFailure(); change.Opened {
				c.logger.WarnContext(ctx, "reputation oracle circuit opened", "breaker", c.breaker.Name())
			}
		}
		return nil, err
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "reputation oracle circuit closed", "breaker", c.breaker.Name())
	}
	return assessment, nil
}

func (c *Client) do(ctx context.Context, q models.Query) (*models.Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(checkRequest{
		AccountHash:  q.Subject.String(),
		BankCode:     q.BankCode,
		BusinessName: q.BusinessName,
	})
	if err != nil {
		return nil, newError(ErrorRejected, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/check-account", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrorRejected, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, newError(ErrorTimeout, "request timed out", err)
		}
		return nil, newError(ErrorOutage, "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newError(ErrorOutage, "read response", err)
	}
	return parseCheckResponse(resp.StatusCode, payload)
}

func parseCheckResponse(status int, body []byte) (*models.Assessment, error) {
	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		e := newError(ErrorOutage, fmt.Sprintf("unexpected status %d", status), nil)
		e.StatusCode = status
		return nil, e
	case status < 200 || status > 299:
		e := newError(ErrorRejected, fmt.Sprintf("unexpected status %d", status), nil)
		e.StatusCode = status
		return nil, e
	}

	var resp checkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(ErrorBadData, "decode response", err)
	}
	if resp.TrustScore == nil {
		return nil, newError(ErrorBadData, "trust_score missing", nil)
	}

	a := &models.Assessment{
		TrustScore: *resp.TrustScore,
		RiskLevel:  models.RiskLevel(strings.ToLower(resp.RiskLevel)),
		Fraud: models.FraudSummary{
			Total:     resp.FraudReports.Total,
			Recent30d: resp.FraudReports.Recent30Days,
		},
		VerifiedBusinessID: strings.TrimSpace(resp.VerifiedBusinessID),
		Flags:              pstrings.DedupeAndTrim(resp.Flags),
	}
	if a.Flags == nil {
		a.Flags = []string{}
	}
	if err := a.Validate(); err != nil {
		return nil, newError(ErrorBadData, "response out of range", err)
	}
	return a, nil
}
