package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, truncate([]byte(e.Body)))
}

// clientErrorMessage extracts the human-readable part of a 4xx body. The v2 API
// answers in plain text; older versions sent {"message": "..."}.
func clientErrorMessage(body []byte, statusCode int) string {
	var payload struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != nil && *payload.Message != "" {
		return *payload.Message
	}

	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return http.StatusText(statusCode)
}
