package gmail

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrUnauthorized is returned when Gmail rejects the access token (HTTP 401).
var ErrUnauthorized = errors.New("gmail: unauthorized")

// StatusError is a non-2xx, non-401 response from Gmail.
type StatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gmail: %d %s", e.Code, e.Status)
	}
	return fmt.Sprintf("gmail: %d %s: %s", e.Code, e.Status, e.Message)
}

// Temporary reports whether the failure is on Google's side and worth
// counting against a circuit breaker.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized {
			return fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
		return fmt.Errorf("%s: %w", op, &StatusError{
			Code:    apiErr.Code,
			Status:  http.StatusText(apiErr.Code),
			Message: apiErr.Message,
		})
	}

	return fmt.Errorf("%s: %w", op, err)
}
