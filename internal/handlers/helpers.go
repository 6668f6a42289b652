// Package handlers translates the videos HTTP API onto the upload core.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	uperr "github.com/videoup/videoup/internal/errors"
)

// problemContentType is the media type of RFC 9457 error bodies, matching
// what huma writes for its own errors.
const problemContentType = "application/problem+json"

// errorMessage returns the client-facing message for err. Causes are
// logged, never sent to the client.
func errorMessage(err error) string {
	var ue *uperr.UploadError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}

// logFailure logs err for op and returns the status to answer with.
func logFailure(op string, err error) int {
	status := uperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError || status == http.StatusFailedDependency {
		slog.Error("Request failed", "operation", op, "status", status, "error", err)
	} else {
		slog.Debug("Request rejected", "operation", op, "status", status, "error", err)
	}
	return status
}

// toHumaError maps an upload core error onto a huma status error.
func toHumaError(op string, err error) error {
	return huma.NewError(logFailure(op, err), errorMessage(err))
}

// writeProblem writes a problem+json body in the same shape huma uses.
func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&huma.ErrorModel{
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}

// writeJSON writes v as a JSON body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
