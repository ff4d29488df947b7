package datasource

import (
	"errors"
	"fmt"
)

// Common error codes
const (
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
	ErrCodeUnknown              = "unknown"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker open")
	ErrInvalidData = errors.New("invalid data format")
)

// DataSourceError represents errors from data source operations
type DataSourceError struct {
	Source  string // Data source name
	Code    string // Error code (e.g., "rate_limit_exceeded")
	Message string
	Err     error
}

func (e DataSourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s (%v)", e.Source, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Code, e.Message)
}

func (e DataSourceError) Unwrap() error {
	return e.Err
}

// NewDataSourceError creates a new data source error
func NewDataSourceError(source, code, message string, err error) DataSourceError {
	return DataSourceError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// errorCodeForStatus maps an HTTP status to a data source error code
func errorCodeForStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return ErrCodeAuthenticationFailed
	case status == 429:
		return ErrCodeRateLimitExceeded
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeUnknown
	}
}
