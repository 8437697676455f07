package hris

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient talks to a REST HRIS:
//
//	GET  {base}/balances/{employeeID}
//	POST {base}/requests
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client for baseURL authenticated with apiKey as a
// bearer token. An empty apiKey sends no Authorization header.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Balance fetches the PTO balance. A 404 maps to ErrEmployeeNotFound.
func (c *HTTPClient) Balance(ctx context.Context, employeeID string) (Balance, error) {
	var b Balance
	status, err := c.do(ctx, http.MethodGet, "/balances/"+url.PathEscape(employeeID), nil, &b)
	if status == http.StatusNotFound {
		return Balance{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
	}
	if err != nil {
		return Balance{}, err
	}
	if b.EmployeeID == "" {
		b.EmployeeID = employeeID
	}
	return b, nil
}

// SubmitLeave posts req. A 4xx with a JSON body is returned as a rejected
// LeaveResult; transport and 5xx failures are errors.
func (c *HTTPClient) SubmitLeave(ctx context.Context, req LeaveRequest) (LeaveResult, error) {
	if err := req.Validate(); err != nil {
		return LeaveResult{}, err
	}
	var res LeaveResult
	status, err := c.do(ctx, http.MethodPost, "/requests", req, &res)
	if err != nil && status >= 400 && status < 500 && res.Message != "" {
		if res.Status == "" {
			res.Status = "error"
		}
		return res, nil
	}
	if err != nil {
		return LeaveResult{}, err
	}
	if res.Status == "" {
		res.Status = "success"
	}
	return res, nil
}

// do sends body as JSON and decodes the response into out. The status code is
// returned alongside any error so callers can classify failures; out is
// decoded for error responses too when the body is JSON.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("hris: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("hris: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("hris: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("hris: read response: %w", err)
	}
	decodeErr := json.Unmarshal(raw, out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("hris: %s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return resp.StatusCode, fmt.Errorf("hris: decode response: %w", decodeErr)
	}
	return resp.StatusCode, nil
}
