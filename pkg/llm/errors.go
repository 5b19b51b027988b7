package llm

import (
	"fmt"
	"net/http"

	"visual-search-be/pkg/apperrors"
)

// StatusError classifies a provider HTTP failure. Requests the provider
// rejects as malformed (bad image, oversized payload) are input errors;
// throttling, timeouts and server faults are left retryable.
func StatusError(provider string, status int, body string) error {
	if len(body) > 512 {
		body = body[:512]
	}
	err := fmt.Errorf("%s error: status %d, body: %s", provider, status, body)
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return apperrors.Input(err)
	default:
		return err
	}
}
