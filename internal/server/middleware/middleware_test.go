package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/cost"
	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/orchestrator"
	"github.com/nulzo/content-orchestrator/internal/resilience"
	"github.com/nulzo/content-orchestrator/internal/routing"
	"github.com/nulzo/content-orchestrator/internal/store"
)

func failure(kind orchestrator.FailureKind) orchestrator.CandidateFailure {
	return orchestrator.CandidateFailure{
		Candidate: routing.Candidate{Provider: "anthropic", Model: "claude-x"},
		Kind:      kind,
		Reason:    string(kind),
	}
}

func TestToProblem(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"exhausted chain", &orchestrator.ChainExhausted{TaskType: "analysis", Failures: []orchestrator.CandidateFailure{failure(orchestrator.FailureProvider), failure(orchestrator.FailureBudget)}}, http.StatusBadGateway},
		{"budget only chain", &orchestrator.ChainExhausted{TaskType: "analysis", Failures: []orchestrator.CandidateFailure{failure(orchestrator.FailureBudget)}}, http.StatusPaymentRequired},
		{"parse error", &llm.ParseError{Snippet: "not json", Err: errors.New("bad")}, http.StatusUnprocessableEntity},
		{"unknown task", eris.Wrapf(routing.ErrUnknownTask, "task %q", "nope"), http.StatusNotFound},
		{"missing record", eris.Wrap(store.ErrNotFound, "content"), http.StatusNotFound},
		{"budget", cost.ErrBudgetExceeded, http.StatusPaymentRequired},
		{"period", cost.ErrInvalidPeriod, http.StatusBadRequest},
		{"circuit", resilience.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"cancelled", context.Canceled, 499},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, ToProblem(tt.err).Status)
		})
	}
}

func TestToProblem_ExhaustedCarriesFailures(t *testing.T) {
	p := ToProblem(&orchestrator.ChainExhausted{TaskType: "analysis", Failures: []orchestrator.CandidateFailure{failure(orchestrator.FailureProvider)}})
	assert.Equal(t, "analysis", p.Extensions["task"])
	require.Contains(t, p.Extensions, "failures")
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(zap.NewNop()))
	r.GET("/", append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })...)
	return r
}

func get(r http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth("secret"))

	assert.Equal(t, http.StatusUnauthorized, get(r, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Authorization", "Basic secret").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(r, "X-API-Key", "secret").Code)
	assert.Equal(t, http.StatusOK, get(r, "Authorization", "Bearer secret").Code)
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	r := newEngine(Auth(""))
	assert.Equal(t, http.StatusOK, get(r, "", "").Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, zap.NewNop())
	r := newEngine(rl.Middleware())

	assert.Equal(t, http.StatusOK, get(r, "", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "", "").Code)

	w := get(r, "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}
