package resilient

import (
	"fmt"
	"io"
	"net/http"
)

// maxResponseSize limits provider response bodies to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Fetch executes req and returns the body of a 2xx response. Network
// failures are transient; HTTP failures are classified by ClassifyStatus.
func Fetch(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if len(body) > maxResponseSize {
		return nil, NewFatalError(fmt.Errorf("response body exceeds %d bytes", maxResponseSize))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ClassifyStatus(resp.StatusCode, body)
	}
	return body, nil
}
