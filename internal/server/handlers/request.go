package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/server/response"
)

// decodeJSON decodes the request body into v, rejecting unknown fields and trailing data
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return bodyError(err)
	}
	if dec.More() {
		return response.NewMalformedRequestError("", "request body must contain a single JSON object")
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, bodyError(err)
	}
	return data, nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxErr):
		return response.NewRequestTooLargeError(fmt.Sprintf("request body exceeds the maximum allowed size (%d bytes)", maxErr.Limit))
	case errors.As(err, &typeErr):
		return response.NewMalformedRequestError(typeErr.Field, fmt.Sprintf("%s has the wrong type", typeErr.Field))
	case errors.Is(err, io.EOF):
		return response.NewMalformedRequestError("", "request body is empty")
	default:
		return response.NewMalformedRequestError("", fmt.Sprintf("invalid request body: %v", err))
	}
}

// sessionIDParam parses a uuid path parameter
func sessionIDParam(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nfce.NewValidationError(fmt.Sprintf("invalid session id %q", raw))
	}
	return id, nil
}
