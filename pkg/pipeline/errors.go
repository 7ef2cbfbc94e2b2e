package pipeline

import (
	"errors"
	"net/http"

	"github.com/axialab/axial/pkg/budget"
	"github.com/axialab/axial/pkg/llm"
	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/task"
	"github.com/axialab/axial/pkg/theory"
)

// Stable error codes surfaced to clients and recorded on failed tasks.
const (
	CodeNotFound               = "NOT_FOUND"
	CodeInsufficientCategories = "INSUFFICIENT_CATEGORIES"
	CodeLocked                 = "LOCKED"
	CodeBudgetExceeded         = budget.ErrCode
	CodeJudgeFailed            = "JUDGE_FAILED"
	CodeRateLimited            = "RATE_LIMITED"
	CodeStoreFatal             = "STORE_FATAL"
)

// Code maps an error to its stable code. Unknown errors are treated as fatal
// store failures: the relational write path is the only one that aborts a
// run without its own typed error.
func Code(err error) string {
	var gateway *llm.GatewayError
	var budgetErr *budget.Error
	var insufficient *theory.InsufficientCategoriesError
	var judgeFailed *theory.JudgeFailedError

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, task.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, task.ErrLocked):
		return CodeLocked
	case errors.As(err, &insufficient):
		return CodeInsufficientCategories
	case errors.As(err, &budgetErr):
		return CodeBudgetExceeded
	case errors.As(err, &judgeFailed):
		return CodeJudgeFailed
	case errors.As(err, &gateway):
		return gateway.Code
	default:
		return CodeStoreFatal
	}
}

// HTTPStatus maps a stable code to the response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeLocked:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInsufficientCategories:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
