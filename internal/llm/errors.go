package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/nulzo/content-orchestrator/internal/httpclient"
)

var (
	// ErrNoContent is returned when a vendor answers without any usable content.
	ErrNoContent = errors.New("no content in response")
	// ErrUnsupported is returned when a provider lacks the requested capability.
	ErrUnsupported = errors.New("capability not supported")
)

// ProviderError is a failure reported by (or while talking to) a vendor API.
// Its text always carries the status code so retry patterns can match it.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s", e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError classifies err for provider. Deadline and network errors
// are labelled so they match the retryable "timeout" pattern.
func NewProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	e := &ProviderError{Provider: provider, Err: err}
	if status := httpclient.StatusCode(err); status != 0 {
		e.StatusCode = status
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Message = "request timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Message = "network timeout"
	}
	return e
}

// NoContent reports an empty vendor answer.
func NoContent(provider string) *ProviderError {
	return &ProviderError{Provider: provider, Err: ErrNoContent}
}

const parseSnippetLen = 200

// ParseError is returned by GenerateJSON when no JSON document can be
// extracted from the model output.
type ParseError struct {
	Snippet string
	Err     error
}

func newParseError(content string, err error) *ParseError {
	snippet := content
	if r := []rune(snippet); len(r) > parseSnippetLen {
		snippet = string(r[:parseSnippetLen])
	}
	return &ParseError{Snippet: snippet, Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON from response: %v (content: %q)", e.Err, e.Snippet)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
