// Package httpapi implements the platform's two HTTP control planes: the
// Lambda-style function service and the S3-style object service. Both are
// thin façades over the functions manager and object store; routing is
// gorilla/mux, access logging gorilla/handlers, and every failure maps
// through the errs taxonomy to its wire status.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/woofstack/platform/errs"
)

// errorBody is the JSON error shape the function service returns,
// matching the exception-name convention of the paths it mimics.
type errorBody struct {
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
}

// timedOutBody is the degraded 200 body an expired invocation returns.
const timedOutBody = `{"error":"function timed out"}`

// writeJSON renders v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeLambdaError maps err onto the function service's wire shape. A
// Timeout is not an error on the wire: it surfaces as HTTP 200 with the
// degraded body.
func writeLambdaError(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := errs.KindOf(err)
	if kind == errs.Timeout {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(timedOutBody))
		return
	}

	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{
		ErrorType:    kind.String(),
		ErrorMessage: err.Error(),
	})
}

// writeS3Error maps err onto the object service's plain-text wire shape.
func writeS3Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := errs.KindOf(err).HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	http.Error(w, http.StatusText(status), status)
}
