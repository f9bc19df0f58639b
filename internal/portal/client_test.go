package portal

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential/testutil"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

const (
	testKey      = nfce.DocumentKey("23240512345678000190650010000012341000012345")
	testProtocol = "323240000123456"
	testTaxID    = "12345678000190"
	testDocument = `<?xml version="1.0" encoding="UTF-8"?><nfeProc versao="4.00"><NFe xmlns="http://www.portalfiscal.inf.br/nfe"><infNFe Id="NFe23240512345678000190650010000012341000012345"/></NFe></nfeProc>`
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		Now:     func() time.Time { return testNow },
	}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewClient() returned error: %v", err)
	}
	return client
}

func validToken() string {
	return testutil.NewToken(testTaxID, testNow.Add(6*time.Hour))
}

func TestFetchDocumentXML(t *testing.T) {
	token := validToken()

	var gotPath, gotKey, gotToken, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("chaveAcesso")
		gotToken = r.URL.Query().Get("apiKey")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(testDocument))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL+"/portalcfews")

	first, err := client.FetchDocumentXML(context.Background(), testProtocol, testKey, token)
	if err != nil {
		t.Fatalf("FetchDocumentXML() returned error: %v", err)
	}
	if gotPath != "/portalcfews/nfce/fiscal-coupons/xml/"+testProtocol {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != testKey.String() || gotToken != token {
		t.Errorf("query parameters chaveAcesso=%q apiKey=%q", gotKey, gotToken)
	}
	if gotAccept != "application/xml, text/xml, */*" {
		t.Errorf("Accept = %q", gotAccept)
	}

	// repeating the fetch returns the same bytes
	second, err := client.FetchDocumentXML(context.Background(), testProtocol, testKey, token)
	if err != nil {
		t.Fatalf("second FetchDocumentXML() returned error: %v", err)
	}
	if first.XML != second.XML || first.XML != testDocument {
		t.Error("repeated fetches returned different content")
	}
}

func TestFetchDocumentXMLErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode nfce.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"invalid token"}`, nfce.ErrCodeCredentialRejected},
		{"not found", http.StatusNotFound, ``, nfce.ErrCodeDocumentNotFound},
		{"server error", http.StatusInternalServerError, `oops`, nfce.ErrCodeUnexpectedStatus},
		{"forbidden", http.StatusForbidden, ``, nfce.ErrCodeUnexpectedStatus},
		{"200 with html", http.StatusOK, `<html><body>login</body></html>`, nfce.ErrCodeInvalidResponseShape},
		{"200 xml without NFe", http.StatusOK, `<?xml version="1.0"?><erro>sem nota</erro>`, nfce.ErrCodeInvalidResponseShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL)
			res, err := client.FetchDocumentXML(context.Background(), testProtocol, testKey, validToken())
			if res != nil {
				t.Errorf("expected no result, got %+v", res)
			}
			if got := nfce.CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %q, want %q (%v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestFetchDocumentXMLPreflight(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(testDocument))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	tests := []struct {
		name     string
		protocol string
		token    string
		wantCode nfce.ErrorCode
	}{
		{"expired token", testProtocol, testutil.NewToken(testTaxID, testNow.Add(-time.Hour)), nfce.ErrCodeCredentialRejected},
		{"malformed token", testProtocol, "not-a-token", nfce.ErrCodeCredentialRejected},
		{"missing protocol", "", validToken(), nfce.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.FetchDocumentXML(context.Background(), tt.protocol, testKey, tt.token)
			if got := nfce.CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %q, want %q (%v)", got, tt.wantCode, err)
			}
		})
	}

	if calls.Load() != 0 {
		t.Errorf("portal was called %d times, want 0", calls.Load())
	}
}

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url"}, slog.New(slog.DiscardHandler)); err == nil {
		t.Error("expected error for invalid base URL")
	}

	client, err := NewClient(Config{}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("default config returned error: %v", err)
	}
	if client.Host() != "cfe.sefaz.ce.gov.br" {
		t.Errorf("Host() = %q", client.Host())
	}
}
