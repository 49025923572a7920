package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nulzo/content-orchestrator/internal/cost"
	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/orchestrator"
	"github.com/nulzo/content-orchestrator/internal/resilience"
	"github.com/nulzo/content-orchestrator/internal/routing"
	"github.com/nulzo/content-orchestrator/internal/store"
	"github.com/nulzo/content-orchestrator/pkg/api"
)

// ErrorHandler renders the last error a handler attached as an RFC 9457 problem.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		problem := ToProblem(err)
		problem.Instance = c.Request.URL.Path

		if problem.Status >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.Int("status", problem.Status),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
		}

		// RFC 9457 dictates the json is at the root
		c.Header("Content-Type", "application/problem+json")
		c.JSON(problem.Status, problem)
		c.Abort()
	}
}

// ToProblem maps domain errors onto HTTP problems.
func ToProblem(err error) *api.Problem {
	var problem *api.Problem
	if errors.As(err, &problem) {
		return problem
	}

	var exhausted *orchestrator.ChainExhausted
	if errors.As(err, &exhausted) {
		failures := make([]api.Failure, 0, len(exhausted.Failures))
		for _, f := range exhausted.Failures {
			failures = append(failures, api.Failure{
				Provider: f.Candidate.Provider,
				Model:    f.Candidate.Model,
				Kind:     string(f.Kind),
				Reason:   f.Reason,
				Attempts: f.Attempts,
			})
		}
		opts := []api.ProblemOption{
			api.WithExtension("task", exhausted.TaskType),
			api.WithExtension("failures", failures),
			api.WithLog(err),
		}
		if exhausted.BudgetOnly() {
			return api.BudgetError("Every candidate was refused by the cost limits.", opts...)
		}
		return api.ProviderError("All providers failed for task "+exhausted.TaskType+".", opts...)
	}

	var parseErr *llm.ParseError
	if errors.As(err, &parseErr) {
		return api.UnprocessableError("The model answer did not contain valid JSON.",
			api.WithExtension("snippet", parseErr.Snippet),
			api.WithLog(err),
		)
	}

	switch {
	case errors.Is(err, routing.ErrUnknownTask):
		return api.NotFoundError(err.Error())
	case errors.Is(err, store.ErrNotFound):
		return api.NotFoundError("The requested record does not exist.")
	case errors.Is(err, cost.ErrBudgetExceeded):
		return api.BudgetError(err.Error())
	case errors.Is(err, cost.ErrInvalidPeriod):
		return api.BadRequestError(err.Error())
	case errors.Is(err, resilience.ErrCircuitOpen):
		return api.ServiceUnavailableError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return api.NewError(http.StatusGatewayTimeout, "Gateway Timeout", "The request deadline was exceeded.", api.WithLog(err))
	case errors.Is(err, context.Canceled):
		// client went away, status is for the log only
		return api.NewError(499, "Client Closed Request", "The request was cancelled.", api.WithLog(err))
	}

	return api.InternalError("An unexpected error occurred.", err)
}
