// Package httputil renders JSON responses and translates domain error codes
// into HTTP status codes. Internal failures never leak their description.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	dErrors "veto/pkg/domain-errors"
)

// MaxBodyBytes caps request bodies decoded by DecodeJSON.
const MaxBodyBytes = 1 << 20

// Detailed errors contribute extra top-level fields to the error envelope.
type Detailed interface {
	ErrorDetails() map[string]any
}

// StatusFor maps a domain code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadyOrphaned, dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeDenied:
		return http.StatusForbidden
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// exposesDescription reports whether the message is safe to return to callers.
func exposesDescription(status int) bool {
	return status < http.StatusInternalServerError
}

// WriteError writes the {"error", "error_description"} envelope for err.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)

	body := map[string]any{"error": string(code)}
	if exposesDescription(status) {
		body["error_description"] = dErrors.MessageOf(err)
	}
	var detailed Detailed
	if errors.As(err, &detailed) {
		for k, v := range detailed.ErrorDetails() {
			if k == "error" || k == "error_description" {
				continue
			}
			body[k] = v
		}
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes a single JSON object from the request body into dst.
// Unknown fields and trailing data are rejected as bad requests.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid json request body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return dErrors.New(dErrors.CodeBadRequest, "request body must contain a single json object")
	}
	return nil
}

// Validatable request bodies normalize and check themselves after decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes the body into a T and validates it. On failure the
// error response has been written and ok is false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](ctx context.Context, w http.ResponseWriter, r *http.Request, logger *slog.Logger, requestID string) (req *T, ok bool) {
	req = new(T)
	if err := DecodeJSON(w, r, req); err != nil {
		logInvalid(ctx, logger, requestID, err)
		WriteError(w, err)
		return nil, false
	}
	if err := PT(req).Validate(); err != nil {
		logInvalid(ctx, logger, requestID, err)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}

func logInvalid(ctx context.Context, logger *slog.Logger, requestID string, err error) {
	if logger == nil {
		return
	}
	logger.WarnContext(ctx, "invalid request",
		"request_id", requestID,
		"error", err,
	)
}
