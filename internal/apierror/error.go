// Package apierror describes failures that carry an HTTP status. The
// collector renders them as JSON responses and the SDK returns them for
// rejected batches.
package apierror

import (
	"fmt"
	"net/http"
)

type HTTPPart struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Error struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	HTTP    HTTPPart               `json:"http"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Message, e.HTTP.Code, e.HTTP.Message)
}

func (e Error) StatusCode() int {
	return e.HTTP.Code
}

func (e Error) WithDetail(key string, value interface{}) Error {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	e.Details = details
	return e
}

func NewAPIError(msg string, status int) Error {
	return Error{
		Message: msg,
		HTTP: HTTPPart{
			Code:    status,
			Message: http.StatusText(status),
		},
	}
}

// IsSuccess reports whether status is a 2xx code.
func IsSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
