package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// jsonRequest — параметры JSON-запроса к внешнему сервису.
type jsonRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	// BasicAuth — пара (user, password), если сервис требует basic auth.
	BasicAuth *[2]string
}

// doJSON выполняет JSON-запрос и декодирует ответ в out (если out != nil).
//
// HTTP >= 400 возвращается как ErrRequest с кодом и началом тела ответа.
func doJSON(ctx context.Context, client *http.Client, r jsonRequest, out any) (int, error) {
	var bodyReader io.Reader
	if r.Body != nil {
		bodyBytes, err := json.Marshal(r.Body)
		if err != nil {
			return 0, fmt.Errorf("%w: marshal body: %v", ErrRequest, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("%w: create request: %v", ErrRequest, err)
	}

	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.BasicAuth != nil {
		req.SetBasicAuth(r.BasicAuth[0], r.BasicAuth[1])
	}

	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read response: %v", ErrRequest, err)
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("%w: HTTP %d: %s", ErrRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", ErrRequest, err)
		}
	}
	return resp.StatusCode, nil
}

// truncate обрезает строку до maxLen символов.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
