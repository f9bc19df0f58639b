package nfce

// errors.go defines the error taxonomy used across the retrieval engine

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	// ErrCodeCertificate is used when a PKCS#12 bundle cannot be transformed (bad password, corrupt file, no key)
	ErrCodeCertificate ErrorCode = "certificate"

	// ErrCodeMalformedCredential is used when a bearer token is not a three segment token with a JSON payload carrying exp and sub
	ErrCodeMalformedCredential ErrorCode = "malformed_credential"

	// ErrCodeExpiredCredential is used when a bearer token's exp claim is not in the future
	ErrCodeExpiredCredential ErrorCode = "expired_credential"

	// ErrCodeSoapTransport is used for network, TLS and timeout failures talking to the authority SOAP service
	ErrCodeSoapTransport ErrorCode = "soap_transport"

	// ErrCodeProtocolNumberMissing is used when the authority response has neither a protocol number nor a usable document
	ErrCodeProtocolNumberMissing ErrorCode = "protocol_number_missing"

	// ErrCodeCredentialRejected is used when the portal refuses the bearer credential (HTTP 401) or it fails pre-flight validation
	ErrCodeCredentialRejected ErrorCode = "credential_rejected"

	// ErrCodeDocumentNotFound is used when the portal has no document for the key (HTTP 404)
	ErrCodeDocumentNotFound ErrorCode = "document_not_found"

	// ErrCodeUnexpectedStatus is used for any other non-success HTTP status from the portal
	ErrCodeUnexpectedStatus ErrorCode = "unexpected_status"

	// ErrCodeInvalidResponseShape is used when a 200 response body is not an invoice document
	ErrCodeInvalidResponseShape ErrorCode = "invalid_response_shape"

	// ErrCodeResponseParse is used when a period search response cannot be decoded
	ErrCodeResponseParse ErrorCode = "response_parse"

	// ErrCodeValidation is used for invalid caller input (bad keys, bad date ranges, missing fields)
	ErrCodeValidation ErrorCode = "validation"

	// ErrCodeNotFound is used when a session, record or blob does not exist
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeStorage is used when a persistence or blob collaborator fails
	ErrCodeStorage ErrorCode = "storage"

	ErrCodeInternal ErrorCode = "internal"
)

// Error represents a structured error from the retrieval engine
type Error struct {

	// code is the error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// httpStatus is the upstream HTTP status (only set for ErrCodeUnexpectedStatus)
	httpStatus int

	// wrapped is the optional underlying error
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *Error) Code() ErrorCode { return e.code }
func (e *Error) Unwrap() error   { return e.wrapped }

// HTTPStatus returns the upstream status code carried by an unexpected status error, or 0.
func (e *Error) HTTPStatus() int { return e.httpStatus }

// CodeOf returns the code of the first *Error in err's chain.
// Errors that are not from this package report ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var nfceErr *Error
	if errors.As(err, &nfceErr) {
		return nfceErr.Code()
	}
	return ErrCodeInternal
}

// NewCertificateError creates a certificate error.
// Use this for wrong passwords, corrupt PKCS#12 containers and bundles without a certificate or key.
//
// The returned error will have code ErrCodeCertificate.
func NewCertificateError(msg string) error {
	return &Error{code: ErrCodeCertificate, message: msg}
}

// WrapCertificateError wraps an existing error as a certificate error.
//
// The returned error will have code ErrCodeCertificate.
func WrapCertificateError(err error, msg string) error {
	return &Error{code: ErrCodeCertificate, message: msg, wrapped: err}
}

// NewMalformedCredentialError creates a malformed credential error.
//
// The returned error will have code ErrCodeMalformedCredential.
func NewMalformedCredentialError(msg string) error {
	return &Error{code: ErrCodeMalformedCredential, message: msg}
}

// WrapMalformedCredentialError wraps an existing error as a malformed credential error.
//
// The returned error will have code ErrCodeMalformedCredential.
func WrapMalformedCredentialError(err error, msg string) error {
	return &Error{code: ErrCodeMalformedCredential, message: msg, wrapped: err}
}

// NewExpiredCredentialError creates an expired credential error.
//
// The returned error will have code ErrCodeExpiredCredential.
func NewExpiredCredentialError(msg string) error {
	return &Error{code: ErrCodeExpiredCredential, message: msg}
}

// WrapSoapTransportError wraps a network, TLS or timeout failure from the SOAP service.
//
// The returned error will have code ErrCodeSoapTransport.
func WrapSoapTransportError(err error, msg string) error {
	return &Error{code: ErrCodeSoapTransport, message: msg, wrapped: err}
}

// NewSoapTransportError creates a SOAP transport error without an underlying cause.
//
// The returned error will have code ErrCodeSoapTransport.
func NewSoapTransportError(msg string) error {
	return &Error{code: ErrCodeSoapTransport, message: msg}
}

// NewProtocolNumberMissingError creates an error for authority responses without a protocol number.
//
// The returned error will have code ErrCodeProtocolNumberMissing.
func NewProtocolNumberMissingError(msg string) error {
	return &Error{code: ErrCodeProtocolNumberMissing, message: msg}
}

// NewCredentialRejectedError creates a credential rejected error.
//
// The returned error will have code ErrCodeCredentialRejected.
func NewCredentialRejectedError(msg string) error {
	return &Error{code: ErrCodeCredentialRejected, message: msg}
}

// WrapCredentialRejectedError wraps a credential validation failure as a rejection.
//
// The returned error will have code ErrCodeCredentialRejected.
func WrapCredentialRejectedError(err error, msg string) error {
	return &Error{code: ErrCodeCredentialRejected, message: msg, wrapped: err}
}

// NewDocumentNotFoundError creates a document not found error.
//
// The returned error will have code ErrCodeDocumentNotFound.
func NewDocumentNotFoundError(msg string) error {
	return &Error{code: ErrCodeDocumentNotFound, message: msg}
}

// NewUnexpectedStatusError creates an error for an unexpected upstream HTTP status.
//
// The returned error will have code ErrCodeUnexpectedStatus.
func NewUnexpectedStatusError(status int, msg string) error {
	return &Error{code: ErrCodeUnexpectedStatus, message: msg, httpStatus: status}
}

// WrapUnexpectedStatusError wraps a transport failure talking to the portal.
// There is no HTTP status in this case.
//
// The returned error will have code ErrCodeUnexpectedStatus.
func WrapUnexpectedStatusError(err error, msg string) error {
	return &Error{code: ErrCodeUnexpectedStatus, message: msg, wrapped: err}
}

// NewInvalidResponseShapeError creates an error for a success response that is not an invoice document.
//
// The returned error will have code ErrCodeInvalidResponseShape.
func NewInvalidResponseShapeError(msg string) error {
	return &Error{code: ErrCodeInvalidResponseShape, message: msg}
}

// WrapResponseParseError wraps a decoding failure of a search response.
//
// The returned error will have code ErrCodeResponseParse.
func WrapResponseParseError(err error, msg string) error {
	return &Error{code: ErrCodeResponseParse, message: msg, wrapped: err}
}

// NewValidationError creates a validation error for invalid input.
//
// The returned error will have code ErrCodeValidation.
func NewValidationError(msg string) error {
	return &Error{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
//
// The returned error will have code ErrCodeValidation.
func WrapValidationError(err error, msg string) error {
	return &Error{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewNotFoundError creates a not found error for local resources (sessions, records, blobs).
//
// The returned error will have code ErrCodeNotFound.
func NewNotFoundError(msg string) error {
	return &Error{code: ErrCodeNotFound, message: msg}
}

// NewStorageError creates a storage error for stored data that is missing or inconsistent.
//
// The returned error will have code ErrCodeStorage.
func NewStorageError(msg string) error {
	return &Error{code: ErrCodeStorage, message: msg}
}

// WrapStorageError wraps a persistence or blob store failure.
//
// The returned error will have code ErrCodeStorage.
func WrapStorageError(err error, msg string) error {
	return &Error{code: ErrCodeStorage, message: msg, wrapped: err}
}

// NewInternalError creates an internal error for unexpected failures.
//
// The returned error will have code ErrCodeInternal.
func NewInternalError(msg string) error {
	return &Error{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
//
// The returned error will have code ErrCodeInternal.
func WrapInternalError(err error, msg string) error {
	return &Error{code: ErrCodeInternal, message: msg, wrapped: err}
}
