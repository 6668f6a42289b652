// Package errors defines the upload coordination error taxonomy used
// throughout videoup.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable classification of an UploadError.
type Code string

const (
	// CodeInvalidArgument marks a caller-supplied value outside policy.
	CodeInvalidArgument Code = "InvalidArgument"
	// CodeStorageUnavailable marks a failed or rejected backend call.
	CodeStorageUnavailable Code = "StorageUnavailable"
	// CodeCompletionFailed marks a multipart completion the backend did not accept.
	CodeCompletionFailed Code = "CompletionFailed"
	// CodeAbortFailed marks a compensating abort that did not succeed.
	CodeAbortFailed Code = "AbortFailed"
)

// UploadError is the error type returned by the upload core. It carries a
// classification code, a human-readable message, the HTTP status the
// surface should answer with, and the wrapped cause.
type UploadError struct {
	// Code classifies the failure (e.g., "InvalidArgument").
	Code Code
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the HTTP status code to return (e.g., 400, 424).
	HTTPStatus int
	// Op names the backend operation involved, if any.
	Op string
	// Err is the underlying cause.
	Err error
	// AbortErr records a failed compensating abort. It never replaces Code.
	AbortErr error
}

// Error implements the error interface for UploadError.
func (e *UploadError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Op)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.AbortErr != nil {
		msg = fmt.Sprintf("%s; abort: %v", msg, e.AbortErr)
	}
	return msg
}

// Unwrap exposes both the cause and the secondary abort failure to
// errors.Is and errors.As.
func (e *UploadError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.AbortErr != nil {
		errs = append(errs, e.AbortErr)
	}
	return errs
}

// Is reports whether target is an UploadError with the same Code, so the
// package sentinels can be matched with errors.Is.
func (e *UploadError) Is(target error) bool {
	t, ok := target.(*UploadError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithAbortFailure returns a copy of e recording err as the secondary abort
// failure. The reported Code is unchanged.
func (e *UploadError) WithAbortFailure(err error) *UploadError {
	cp := *e
	cp.AbortErr = AbortFailed(err)
	return &cp
}

// Sentinels for use with errors.Is.
var (
	// ErrInvalidArgument is returned when a part number or manifest entry
	// violates policy. Never retried.
	ErrInvalidArgument = &UploadError{
		Code:       CodeInvalidArgument,
		Message:    "Invalid Argument",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrStorageUnavailable is returned when the object store could not
	// serve a call.
	ErrStorageUnavailable = &UploadError{
		Code:       CodeStorageUnavailable,
		Message:    "Object storage not available right now",
		HTTPStatus: http.StatusFailedDependency,
	}

	// ErrCompletionFailed is returned when the object store did not assemble
	// the upload. A compensating abort has always been attempted.
	ErrCompletionFailed = &UploadError{
		Code:       CodeCompletionFailed,
		Message:    "Multipart upload could not be completed, upload the file again",
		HTTPStatus: http.StatusBadGateway,
	}

	// ErrAbortFailed is only ever recorded alongside ErrCompletionFailed.
	ErrAbortFailed = &UploadError{
		Code:       CodeAbortFailed,
		Message:    "Multipart upload could not be aborted",
		HTTPStatus: http.StatusBadGateway,
	}
)

// InvalidArgument builds an InvalidArgument error with a formatted message.
func InvalidArgument(format string, args ...any) *UploadError {
	return &UploadError{
		Code:       CodeInvalidArgument,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadRequest,
	}
}

// StorageUnavailable wraps a backend failure for op. An error that is
// already classified as StorageUnavailable is returned unchanged.
func StorageUnavailable(op string, err error) *UploadError {
	var ue *UploadError
	if stderrors.As(err, &ue) && ue.Code == CodeStorageUnavailable {
		return ue
	}
	return &UploadError{
		Code:       CodeStorageUnavailable,
		Message:    ErrStorageUnavailable.Message,
		HTTPStatus: http.StatusFailedDependency,
		Op:         op,
		Err:        err,
	}
}

// CompletionFailed builds a CompletionFailed error. cause may be nil when
// the backend answered but the answer was degenerate.
func CompletionFailed(reason string, cause error) *UploadError {
	return &UploadError{
		Code:       CodeCompletionFailed,
		Message:    reason,
		HTTPStatus: http.StatusBadGateway,
		Op:         "CompleteMultipart",
		Err:        cause,
	}
}

// AbortFailed wraps the failure of a compensating abort.
func AbortFailed(err error) *UploadError {
	return &UploadError{
		Code:       CodeAbortFailed,
		Message:    ErrAbortFailed.Message,
		HTTPStatus: http.StatusBadGateway,
		Op:         "AbortMultipart",
		Err:        err,
	}
}

// HTTPStatus returns the status an error should be reported with, or 500
// for errors outside the taxonomy.
func HTTPStatus(err error) int {
	var ue *UploadError
	if stderrors.As(err, &ue) {
		return ue.HTTPStatus
	}
	return http.StatusInternalServerError
}
