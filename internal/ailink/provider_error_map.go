package ailink

import (
	"context"
	"errors"
	"strings"

	"github.com/storelens/storelens/internal/ailink/driver"
)

const (
	CodeTimeout     = "AILINK_PROVIDER_TIMEOUT"
	CodeAuth        = "AILINK_PROVIDER_AUTH"
	CodeRateLimit   = "AILINK_PROVIDER_RATE_LIMIT"
	CodeUnavailable = "AILINK_PROVIDER_UNAVAILABLE"
	CodeBadRequest  = "AILINK_PROVIDER_BAD_REQUEST"
	CodeProvider    = "AILINK_PROVIDER_ERROR"
)

func mapProviderError(err error) *ProviderFailure {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderFailure{Code: CodeTimeout, Message: "provider request timed out", Err: err}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		details := strings.TrimSpace(perr.Message)
		failure := &ProviderFailure{Details: details, Err: err}
		switch {
		case status == 401 || status == 403:
			failure.Code, failure.Message = CodeAuth, "provider authentication failed"
		case status == 429:
			failure.Code, failure.Message = CodeRateLimit, "provider rate limited"
		case status >= 500 && status <= 599:
			failure.Code, failure.Message = CodeUnavailable, "provider unavailable"
		case status >= 400 && status <= 499:
			failure.Code, failure.Message = CodeBadRequest, "provider rejected request"
		default:
			failure.Code, failure.Message = CodeProvider, "provider request failed"
		}
		return failure
	}

	return &ProviderFailure{Code: CodeProvider, Message: "provider request failed", Details: err.Error(), Err: err}
}
