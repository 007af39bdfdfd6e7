package ai

import (
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/steveyegge/seoloop/internal/retry"
)

// isRetriableError trusts the SDK's status code when there is one: rate
// limits, server errors and 529 overloaded are transient, other client
// errors are not.
func isRetriableError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return retry.RetriableStatus(apiErr.StatusCode)
	}
	return retry.Transient(err)
}
