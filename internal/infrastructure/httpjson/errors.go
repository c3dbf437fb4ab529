package httpjson

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/lead-pipeline/internal/core/domain"
)

type HTTPStatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Service, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// Temporary marks 429, 502 and 503 responses as worth retrying.
func (e *HTTPStatusError) Temporary() bool {
	return e != nil && IsRetryableStatus(e.StatusCode)
}

func statusError(service, operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	statusErr := &HTTPStatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
	return domain.WrapError(kindForStatus(resp.StatusCode), service+" "+operation, statusErr)
}

func kindForStatus(statusCode int) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return domain.ErrAuthentication
	case statusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case statusCode == http.StatusConflict:
		return domain.ErrConflict
	case statusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return domain.ErrValidation
	case statusCode >= 500:
		return domain.ErrServiceUnavailable
	default:
		return domain.ErrInternal
	}
}

func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}
