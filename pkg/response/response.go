package response

import (
	"net/http"

	"echallan-backend/pkg/apperror"
)

// Response represents a standard API response format
type Response struct {
	Status     string                `json:"status"`      // "success" or "error"
	StatusCode int                   `json:"status_code"` // HTTP status code
	Data       interface{}           `json:"data,omitempty"`
	Error      string                `json:"error,omitempty"`
	Fields     []apperror.FieldError `json:"fields,omitempty"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// FromError maps an application error onto the envelope, carrying field
// details for validation failures. Unknown error types become a plain 500.
func FromError(err error) (int, Response) {
	if appErr, ok := apperror.As(err); ok {
		resp := Error(appErr.Status, appErr.Message)
		resp.Fields = appErr.Fields
		return appErr.Status, resp
	}
	return http.StatusInternalServerError, Error(http.StatusInternalServerError, "internal server error")
}
