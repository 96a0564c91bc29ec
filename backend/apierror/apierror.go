package apierror

import (
	"fmt"
	"net/http"
)

// Error is the rejection value of a failed REST call. Data keeps the decoded
// "data" member of the response body as is, nil when the body had none.
type Error struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}
