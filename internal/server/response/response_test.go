package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

func TestMapErrorToResponse(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"validation", nfce.NewValidationError("end date is before start date"), http.StatusBadRequest, "validation", "end date is before start date"},
		{"certificate", nfce.NewCertificateError("wrong password"), http.StatusUnprocessableEntity, "certificate", "wrong password"},
		{"expired credential", nfce.NewExpiredCredentialError("token expired"), http.StatusUnauthorized, "expired_credential", "token expired"},
		{"not found", nfce.NewNotFoundError("session not found"), http.StatusNotFound, "not_found", "session not found"},
		{"portal status", nfce.NewUnexpectedStatusError(503, "portal returned 503"), http.StatusBadGateway, "unexpected_status", "portal returned 503"},
		{"storage is sanitized", nfce.WrapStorageError(errors.New("disk full at /var/data"), "write failed"), http.StatusInternalServerError, "storage", "An internal error occurred"},
		{"wrapped engine error", errors.Join(errors.New("context"), nfce.NewValidationError("bad key")), http.StatusBadRequest, "validation", "context\nbad key"},
		{"transport error", NewRequestTooLargeError("too big"), http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "too big"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/sessions/123", nil)
			resp := MapErrorToResponse(tt.err, req)

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if len(resp.Errors) != 1 {
				t.Fatalf("got %d detailed errors, want 1", len(resp.Errors))
			}
			if resp.Errors[0].ErrorCode != tt.wantCode {
				t.Errorf("error code = %s, want %s", resp.Errors[0].ErrorCode, tt.wantCode)
			}
			if resp.Errors[0].ErrorCodeMessage != tt.wantMessage {
				t.Errorf("message = %q, want %q", resp.Errors[0].ErrorCodeMessage, tt.wantMessage)
			}
			if resp.HTTPMethod != http.MethodGet || resp.RequestURI != "/v1/sessions/123" {
				t.Errorf("request fields = %s %s", resp.HTTPMethod, resp.RequestURI)
			}
		})
	}
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	rr := httptest.NewRecorder()

	RespondWithError(rr, req, NewMalformedRequestError("ownerId", "ownerId is required"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %s", ct)
	}

	var body ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Errors[0].Property != "ownerId" || body.Errors[0].ErrorCode != ErrCodeMalformedRequest {
		t.Errorf("detailed error = %+v", body.Errors[0])
	}
	if body.ErrorDateTime == "" {
		t.Error("errorDateTime not set")
	}
}
