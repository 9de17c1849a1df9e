// Package patientapi provides a client for the patient assessment API.
package patientapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/model"
)

// Client defines the assessment API operations. Each call is a single
// attempt; retry policy belongs to the caller.
type Client interface {
	// ListPatients fetches one page of patient records and validates its shape.
	ListPatients(ctx context.Context, page, limit int) (*model.Page, error)
	// SubmitAssessment posts the aggregated id sets and returns the grade.
	SubmitAssessment(ctx context.Context, payload model.AssessmentPayload) (*model.SubmissionResult, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets the per-request timeout. Non-positive values keep the
// 30s default.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRequestIDs sets the generator for the X-Request-ID header.
func WithRequestIDs(fn func() string) Option {
	return func(c *httpClient) {
		c.requestID = fn
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	requestID func() string
}

// NewClient creates a new assessment API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   "https://assessment.ksensetech.com/api",
		timeout:   30 * time.Second,
		requestID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return c
}

func (c *httpClient) newRequest(ctx context.Context, method, reqURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", c.requestID())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and returns the body. Non-2xx responses become *StatusError.
func (c *httpClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, eris.Wrap(readErr, "patientapi: read response body")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(body, 512)}
	}
	return body, nil
}

func (c *httpClient) ListPatients(ctx context.Context, page, limit int) (*model.Page, error) {
	reqURL := fmt.Sprintf("%s/patients?page=%d&limit=%d", c.baseURL, page, limit)

	req, err := c.newRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "patientapi: create request")
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	return DecodePage(body)
}

func (c *httpClient) SubmitAssessment(ctx context.Context, payload model.AssessmentPayload) (*model.SubmissionResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "patientapi: marshal payload")
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/submit-assessment", bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "patientapi: create submit request")
	}

	body, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "patientapi: submit assessment")
	}

	var result model.SubmissionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "patientapi: unmarshal submission response")
	}
	if result.Results == nil {
		return nil, eris.New("patientapi: submission response has no results")
	}
	result.Raw = body

	return &result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
