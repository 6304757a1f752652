package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced by the retrieval pipeline. Handlers map Status to the
// HTTP response and put Code in the error envelope so the front end can
// distinguish "backend down" from "bad request".
const (
	CodeValidation         = "validation_error"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeSourceNotFound     = "source_not_found"
	CodeRenderEmpty        = "render_empty"
	CodeBackendUnavailable = "backend_unavailable"
	CodeStoreWriteFailed   = "store_write_failed"
	CodeInternal           = "internal_error"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(err error) *Error {
	return New(http.StatusBadRequest, CodeValidation, err)
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, CodeSourceNotFound, err)
}

func RenderEmpty(err error) *Error {
	return New(http.StatusUnprocessableEntity, CodeRenderEmpty, err)
}

func BackendUnavailable(err error) *Error {
	return New(http.StatusServiceUnavailable, CodeBackendUnavailable, err)
}

func StoreWriteFailed(err error) *Error {
	return New(http.StatusInternalServerError, CodeStoreWriteFailed, err)
}

// Resolve extracts the status and code to respond with for any error.
func Resolve(err error) (int, string) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		status := apiErr.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := apiErr.Code
		if code == "" {
			code = CodeInternal
		}
		return status, code
	}
	return http.StatusInternalServerError, CodeInternal
}
