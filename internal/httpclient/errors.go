package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

const bodySnippetLen = 300

// UpstreamError represents a non-2xx answer from an upstream service.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	URL        string
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("upstream error: status %d (%s) from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
	if len(e.Body) == 0 {
		return msg
	}
	body := e.Body
	if len(body) > bodySnippetLen {
		body = body[:bodySnippetLen]
	}
	return msg + ": " + string(body)
}

// Temporary reports whether the status usually clears on its own.
func (e *UpstreamError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an UpstreamError.
func StatusCode(err error) int {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode
	}
	return 0
}
