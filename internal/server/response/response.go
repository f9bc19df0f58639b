// Package response writes JSON responses and maps errors to the API error format.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/information-sharing-networks/nfce-downloader/internal/logger"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// ErrorResponse is the body of every error returned by the API
type ErrorResponse struct {

	// The HTTP method used to make the request e.g. GET, POST, etc
	HTTPMethod string `json:"httpMethod"`

	// The URI that was requested
	RequestURI string `json:"requestUri"`

	StatusCode     int    `json:"statusCode"`
	StatusCodeText string `json:"statusCodeText"`

	// A short description of the error category
	StatusCodeMessage string `json:"statusCodeMessage,omitempty"`

	// The chi request id, also present in the server logs
	ProviderCorrelationReference string `json:"providerCorrelationReference,omitempty"`

	ErrorDateTime string `json:"errorDateTime"`

	Errors []DetailedError `json:"errors"`
}

type DetailedError struct {
	ErrorCode        string `json:"errorCode"`
	Property         string `json:"property,omitempty"`
	ErrorCodeText    string `json:"errorCodeText"`
	ErrorCodeMessage string `json:"errorCodeMessage"`
}

// Transport level error codes (the engine's own codes are nfce.ErrorCode values)
const (
	ErrCodeMalformedRequest  = "malformed_request"
	ErrCodeRequestTooLarge   = "request_too_large"
	ErrCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrCodeShuttingDown      = "shutting_down"
)

// HTTPError is an error raised by the HTTP layer itself (bad JSON, oversized bodies, rate limits)
type HTTPError struct {
	status   int
	code     string
	property string
	message  string
}

func (e *HTTPError) Error() string { return e.message }

func NewMalformedRequestError(property, msg string) error {
	return &HTTPError{status: http.StatusBadRequest, code: ErrCodeMalformedRequest, property: property, message: msg}
}

func NewRequestTooLargeError(msg string) error {
	return &HTTPError{status: http.StatusRequestEntityTooLarge, code: ErrCodeRequestTooLarge, message: msg}
}

func NewRateLimitError(msg string) error {
	return &HTTPError{status: http.StatusTooManyRequests, code: ErrCodeRateLimitExceeded, message: msg}
}

func NewServiceUnavailableError(msg string) error {
	return &HTTPError{status: http.StatusServiceUnavailable, code: ErrCodeShuttingDown, message: msg}
}

// statusFor maps engine error codes to the HTTP status and the short text used in responses.
// Upstream failures are reported as 502 since the caller's request itself was valid.
func statusFor(code nfce.ErrorCode) (int, string) {
	switch code {
	case nfce.ErrCodeValidation:
		return http.StatusBadRequest, "Invalid request"
	case nfce.ErrCodeMalformedCredential:
		return http.StatusBadRequest, "Malformed credential"
	case nfce.ErrCodeCertificate:
		return http.StatusUnprocessableEntity, "Bad certificate"
	case nfce.ErrCodeExpiredCredential:
		return http.StatusUnauthorized, "Expired credential"
	case nfce.ErrCodeCredentialRejected:
		return http.StatusUnauthorized, "Credential rejected"
	case nfce.ErrCodeNotFound:
		return http.StatusNotFound, "Not found"
	case nfce.ErrCodeDocumentNotFound:
		return http.StatusNotFound, "Document not found"
	case nfce.ErrCodeSoapTransport:
		return http.StatusBadGateway, "Authority unavailable"
	case nfce.ErrCodeProtocolNumberMissing:
		return http.StatusBadGateway, "Protocol number missing"
	case nfce.ErrCodeUnexpectedStatus, nfce.ErrCodeInvalidResponseShape, nfce.ErrCodeResponseParse:
		return http.StatusBadGateway, "Portal error"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// MapErrorToResponse maps an error to the API error response.
//
// Messages of internal and storage errors are replaced with a generic text; the full error is logged.
func MapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())

	var (
		status   int
		code     string
		text     string
		property string
		message  = err.Error()
	)

	var httpErr *HTTPError
	var nfceErr *nfce.Error
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.status
		code = httpErr.code
		text = http.StatusText(status)
		property = httpErr.property
	case errors.As(err, &nfceErr):
		status, text = statusFor(nfceErr.Code())
		code = string(nfceErr.Code())
		if status == http.StatusInternalServerError {
			message = "An internal error occurred"
		}
	default:
		reqLogger := logger.ContextRequestLogger(r.Context())
		reqLogger.Error("BUG: unmapped error type in MapErrorToResponse",
			slog.String("error_type", fmt.Sprintf("%T", err)),
			slog.String("error", err.Error()),
		)
		status = http.StatusInternalServerError
		code = string(nfce.ErrCodeInternal)
		text = "Internal error"
		message = "An internal error occurred"
	}

	return &ErrorResponse{
		HTTPMethod:                   r.Method,
		RequestURI:                   r.RequestURI,
		StatusCode:                   status,
		StatusCodeText:               http.StatusText(status),
		StatusCodeMessage:            text,
		ProviderCorrelationReference: requestID,
		ErrorDateTime:                time.Now().UTC().Format(time.RFC3339),
		Errors: []DetailedError{
			{
				ErrorCode:        code,
				Property:         property,
				ErrorCodeText:    text,
				ErrorCodeMessage: message,
			},
		},
	}
}

// RespondWithError logs err with the request logger and writes the mapped error response
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	resp := MapErrorToResponse(err, r)

	reqLogger := logger.ContextRequestLogger(r.Context())
	attrs := []any{
		slog.Int("status", resp.StatusCode),
		slog.String("error_code", resp.Errors[0].ErrorCode),
		slog.String("error", err.Error()),
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		reqLogger.Error("request failed", attrs...)
	} else {
		reqLogger.Info("request rejected", attrs...)
	}
	logger.ContextWithLogAttrs(r.Context(), slog.String("error_code", resp.Errors[0].ErrorCode))

	RespondWithJSON(w, resp.StatusCode, resp)
}

func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
