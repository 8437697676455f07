package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of a non-2xx response body is quoted in errors.
const maxErrorBody = 512

// httpStatusError is returned when an embeddings endpoint answers non-2xx.
type httpStatusError struct {
	// Status is the HTTP status code.
	Status int
	// Message is the provider's error message, or a snippet of the body.
	Message string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// postJSON sends body as JSON to url with the given headers and decodes a 2xx
// response into out. For non-2xx responses extractErr pulls the provider's
// message out of the raw body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, extractErr func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		msg := ""
		if extractErr != nil {
			msg = extractErr(raw)
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
			if len(msg) > maxErrorBody {
				msg = msg[:maxErrorBody] + "..."
			}
		}
		return &httpStatusError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
