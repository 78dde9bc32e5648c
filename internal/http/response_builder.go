// Package http provides the JSON HTTP transport of the ledger.
//
// This file implements the Builder Pattern for the response envelope
// {"status","message","data"} and the mapping of error kinds to statuses.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"ledger/internal/core"
	"ledger/internal/log"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// errUnsupportedMediaType rejects request bodies that are not JSON.
var errUnsupportedMediaType = errors.New("unsupported media type")

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	body       envelope
	headers    map[string]string
}

// NewJSONResponse creates a new successful response with 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		body:       envelope{Status: statusOK},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	b.body.Message = msg
	return b
}

func (b *JSONResponseBuilder) Data(data any) *JSONResponseBuilder {
	b.body.Data = data
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to w.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse builds an error envelope for err. Store-side failures carry
// only their kind as message.
func ErrorResponse(err error) *JSONResponseBuilder {
	b := NewJSONResponse().Status(statusFor(err))
	b.body.Status = statusError
	if errors.Is(err, errUnsupportedMediaType) {
		return b.Message(errUnsupportedMediaType.Error())
	}
	return b.Message(core.Message(err))
}

// statusFor maps an error to its HTTP status by kind.
func statusFor(err error) int {
	if errors.Is(err, errUnsupportedMediaType) {
		return http.StatusUnsupportedMediaType
	}
	switch core.KindOf(err) {
	case core.ErrInvalidArgument:
		return http.StatusUnprocessableEntity
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrDuplicateName:
		return http.StatusConflict
	case core.ErrUnauthenticated, core.ErrMalformedCredential:
		return http.StatusUnauthorized
	case core.ErrTimeout:
		return http.StatusGatewayTimeout
	case core.ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err with its kind and writes the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorResponse(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithOperation(op).WithErrorKind(core.KindOf(err).Error()).WithError(err).ToSlice()
	if resp.statusCode >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", fields...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields...)
	}
	resp.Write(w)
}
