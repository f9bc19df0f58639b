package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/blob"
	"github.com/information-sharing-networks/nfce-downloader/internal/config"
	credtestutil "github.com/information-sharing-networks/nfce-downloader/internal/credential/testutil"
	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
	"github.com/information-sharing-networks/nfce-downloader/internal/crypto/testutil"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/portal"
	"github.com/information-sharing-networks/nfce-downloader/internal/server/handlers"
	"github.com/information-sharing-networks/nfce-downloader/internal/server/response"
	"github.com/information-sharing-networks/nfce-downloader/internal/session"
	"github.com/information-sharing-networks/nfce-downloader/internal/version"
)

const (
	keyA = "23240512345678000190650010000012341000012345"
	keyB = "23240512345678000190650010000012351000012346"

	certPassword = "s3cret"
	taxpayerID   = "12345678000190"
	ownerID      = "owner-1"
)

func documentXML(key nfce.DocumentKey) string {
	return `<nfeProc><NFe><infNFe Id="NFe` + key.String() + `"/></NFe></nfeProc>`
}

// stubRetriever succeeds for every key except notFound
type stubRetriever struct {
	notFound nfce.DocumentKey
}

func (s stubRetriever) Retrieve(ctx context.Context, key nfce.DocumentKey, token string) nfce.Result {
	if key == s.notFound {
		return nfce.Failed(nfce.NewDocumentNotFoundError("document not found"), "", "217")
	}
	return nfce.Succeeded(nfce.MethodHybrid, documentXML(key), "123450000000001", "100")
}

func (s stubRetriever) RetrieveWithProtocol(ctx context.Context, key nfce.DocumentKey, protocol, token string) nfce.Result {
	return nfce.Succeeded(nfce.MethodPortal, documentXML(key), protocol, "")
}

type stubSearcher struct {
	result *portal.SearchResult
	err    error
}

func (s stubSearcher) SearchAll(ctx context.Context, sr portal.SearchRequest, maxPages int) (*portal.SearchResult, error) {
	return s.result, s.err
}

type stubPinger struct {
	err error
}

func (p stubPinger) IsDatabaseRunning(ctx context.Context) (bool, error) {
	return p.err == nil, p.err
}

type testServer struct {
	srv   *Server
	store *session.MemoryStore
	blobs *blob.FileStore
	pfx   []byte
	token string
}

func newTestServer(t *testing.T, pinger handlers.Pinger, searcher session.Searcher) *testServer {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	blobs, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	t.Cleanup(func() { _ = blobs.Close() })

	bundle, err := testutil.NewPKCS12("Contribuinte Teste", certPassword)
	if err != nil {
		t.Fatalf("failed to create test certificate: %v", err)
	}

	portalClient, err := portal.NewClient(portal.Config{BaseURL: "https://portal.example.com/portalcfews"}, logger)
	if err != nil {
		t.Fatalf("portal.NewClient: %v", err)
	}

	store := session.NewMemoryStore()
	newRetriever := func(material *crypto.CertificateMaterial) (session.Retriever, error) {
		return stubRetriever{notFound: keyB}, nil
	}
	processor := session.NewProcessor(store, blobs, newRetriever, session.Config{}, logger)
	period := session.NewPeriodSearch(processor, searcher, session.PeriodConfig{MaxDays: 31, PageSize: 100, MaxPages: 5})

	cfg := &config.Environment{
		Environment:           "test",
		WriteTimeout:          10 * time.Second,
		ServerShutdownTimeout: 5 * time.Second,
		MaxRequestBodySize:    1 << 20,
	}

	srv := New(Dependencies{
		Database:     pinger,
		Store:        store,
		Blobs:        blobs,
		Processor:    processor,
		PeriodSearch: period,
		AccessURLs:   portalClient,
		Version:      version.Info{Version: "v1.0.0", BuildDate: "2026-01-01", GitCommit: "abc123"},
	}, cfg, logger)

	return &testServer{
		srv:   srv,
		store: store,
		blobs: blobs,
		pfx:   bundle.PFX,
		token: credtestutil.NewToken(taxpayerID, time.Now().Add(2*time.Hour)),
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rr, req)
	return rr
}

// waitForSessions blocks until every background session has finished
func (ts *testServer) waitForSessions() {
	ts.srv.sessions.wg.Wait()
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rr.Body.String())
	}
	return v
}

func TestKeyListSession(t *testing.T) {
	ts := newTestServer(t, stubPinger{}, stubSearcher{})

	rr := ts.do(t, http.MethodPost, "/v1/key-lists?ownerId="+ownerID, "chave\n"+keyA+"\n"+keyB+"\nnot-a-key\n")
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload key list: status %d, body %s", rr.Code, rr.Body.String())
	}
	list := decode[handlers.KeyListResponse](t, rr)
	if list.ValidCount != 2 || list.InvalidCount != 1 || !list.HeaderSkipped {
		t.Errorf("key list response = %+v", list)
	}

	rr = ts.do(t, http.MethodPost, "/v1/sessions", handlers.CreateSessionRequest{
		OwnerID:        ownerID,
		KeyListLocator: list.Locator,
		Certificate:    ts.pfx,
		Password:       certPassword,
		Token:          ts.token,
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create session: status %d, body %s", rr.Code, rr.Body.String())
	}
	created := decode[nfce.Session](t, rr)
	if created.Status != nfce.SessionInProgress || created.TotalKeys != 2 {
		t.Errorf("created session = %+v", created)
	}
	if loc := rr.Header().Get("Location"); loc != "/v1/sessions/"+created.ID.String() {
		t.Errorf("Location = %s", loc)
	}

	ts.waitForSessions()

	rr = ts.do(t, http.MethodGet, "/v1/sessions/"+created.ID.String(), nil)
	got := decode[nfce.Session](t, rr)
	if got.Status != nfce.SessionCompleted || got.SuccessCount != 1 || got.FailureCount != 1 || got.CompletedAt == nil {
		t.Errorf("finished session = %+v", got)
	}

	rr = ts.do(t, http.MethodGet, "/v1/sessions/"+created.ID.String()+"/records", nil)
	records := decode[[]nfce.DownloadRecord](t, rr)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Status != nfce.RecordSuccess || records[1].Status != nfce.RecordNotFound {
		t.Errorf("record statuses = %s, %s", records[0].Status, records[1].Status)
	}

	rr = ts.do(t, http.MethodGet, "/v1/sessions/"+created.ID.String()+"/records/"+keyA+"/xml", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != documentXML(keyA) {
		t.Errorf("xml: status %d, body %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Content-Type = %s", ct)
	}

	rr = ts.do(t, http.MethodGet, "/v1/sessions/"+created.ID.String()+"/records/"+keyB+"/xml", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("xml of a failed key: status %d, want 404", rr.Code)
	}
}

func TestGetRecordXMLRejectsAlteredDocument(t *testing.T) {
	ts := newTestServer(t, stubPinger{}, stubSearcher{})

	rr := ts.do(t, http.MethodPost, "/v1/sessions", handlers.CreateSessionRequest{
		OwnerID:     ownerID,
		Keys:        []string{keyA},
		Certificate: ts.pfx,
		Password:    certPassword,
		Token:       ts.token,
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create session: status %d, body %s", rr.Code, rr.Body.String())
	}
	created := decode[nfce.Session](t, rr)
	ts.waitForSessions()

	records, err := ts.store.ListRecords(context.Background(), created.ID)
	if err != nil || len(records) != 1 || records[0].BlobLocator == "" {
		t.Fatalf("records = %+v, err = %v", records, err)
	}
	if _, err := ts.blobs.PersistBlob(context.Background(), records[0].BlobLocator, []byte("<?xml version=\"1.0\"?><NFe/>")); err != nil {
		t.Fatalf("overwrite document: %v", err)
	}

	rr = ts.do(t, http.MethodGet, "/v1/sessions/"+created.ID.String()+"/records/"+keyA+"/xml", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 (body %s)", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "NFe") {
		t.Errorf("altered document was served: %s", rr.Body.String())
	}
}

func TestCreateSessionErrors(t *testing.T) {
	ts := newTestServer(t, stubPinger{}, stubSearcher{})
	expired := credtestutil.NewToken(taxpayerID, time.Now().Add(-time.Minute))

	tests := []struct {
		name          string
		body          any
		wantStatus    int
		wantCode      string
		wantStoredRun bool
	}{
		{
			name:       "invalid json",
			body:       `{"ownerId":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   response.ErrCodeMalformedRequest,
		},
		{
			name:       "unknown field",
			body:       `{"ownerId":"owner-1","extra":true}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   response.ErrCodeMalformedRequest,
		},
		{
			name:       "no key source",
			body:       handlers.CreateSessionRequest{OwnerID: ownerID, Certificate: ts.pfx, Password: certPassword, Token: ts.token},
			wantStatus: http.StatusBadRequest,
			wantCode:   response.ErrCodeMalformedRequest,
		},
		{
			name:          "wrong certificate password",
			body:          handlers.CreateSessionRequest{OwnerID: ownerID, Keys: []string{keyA}, Certificate: ts.pfx, Password: "wrong", Token: ts.token},
			wantStatus:    http.StatusUnprocessableEntity,
			wantCode:      string(nfce.ErrCodeCertificate),
			wantStoredRun: true,
		},
		{
			name:          "expired token",
			body:          handlers.CreateSessionRequest{OwnerID: ownerID, Keys: []string{keyA}, Certificate: ts.pfx, Password: certPassword, Token: expired},
			wantStatus:    http.StatusUnauthorized,
			wantCode:      string(nfce.ErrCodeExpiredCredential),
			wantStoredRun: true,
		},
		{
			name:          "missing key list",
			body:          handlers.CreateSessionRequest{OwnerID: ownerID, KeyListLocator: "key-lists/owner-1/missing.csv", Certificate: ts.pfx, Password: certPassword, Token: ts.token},
			wantStatus:    http.StatusNotFound,
			wantCode:      string(nfce.ErrCodeNotFound),
			wantStoredRun: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := countFailed(ts.listOwnerSessions(t))

			rr := ts.do(t, http.MethodPost, "/v1/sessions", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			body := decode[response.ErrorResponse](t, rr)
			if body.Errors[0].ErrorCode != tt.wantCode {
				t.Errorf("error code = %s, want %s", body.Errors[0].ErrorCode, tt.wantCode)
			}

			want := before
			if tt.wantStoredRun {
				want++
			}
			if got := countFailed(ts.listOwnerSessions(t)); got != want {
				t.Errorf("failed sessions = %d, want %d", got, want)
			}
		})
	}
}

func (ts *testServer) listOwnerSessions(t *testing.T) []nfce.Session {
	t.Helper()
	rr := ts.do(t, http.MethodGet, "/v1/owners/"+ownerID+"/sessions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list owner sessions: status %d", rr.Code)
	}
	return decode[[]nfce.Session](t, rr)
}

func countFailed(sessions []nfce.Session) int {
	n := 0
	for _, s := range sessions {
		if s.Status == nfce.SessionFailed {
			n++
		}
	}
	return n
}

func TestGetSessionErrors(t *testing.T) {
	ts := newTestServer(t, stubPinger{}, stubSearcher{})

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"bad id", "/v1/sessions/not-a-uuid", http.StatusBadRequest},
		{"unknown session", "/v1/sessions/6f1c1f5e-8b54-4c47-9d43-3f1c8d1b2e10", http.StatusNotFound},
		{"records of unknown session", "/v1/sessions/6f1c1f5e-8b54-4c47-9d43-3f1c8d1b2e10/records", http.StatusNotFound},
		{"bad key", "/v1/sessions/6f1c1f5e-8b54-4c47-9d43-3f1c8d1b2e10/records/123/xml", http.StatusBadRequest},
		{"bad owner", "/v1/owners/-bad/sessions", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodGet, tt.path, nil)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestPeriodSearch(t *testing.T) {
	searcher := stubSearcher{result: &portal.SearchResult{
		Items: []portal.SearchItem{
			{ProtocolNumber: "900001", AccessKey: keyA},
			{ProtocolNumber: "900002", AccessKey: keyB},
		},
		Total: 2,
	}}
	ts := newTestServer(t, stubPinger{}, searcher)

	rr := ts.do(t, http.MethodPost, "/v1/period-searches", handlers.PeriodSearchRequest{
		OwnerID: ownerID,
		Start:   "2026-03-01",
		End:     "2026-03-31",
		Token:   ts.token,
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}
	created := decode[nfce.Session](t, rr)
	if created.Source != nfce.SourcePeriodSearch || created.TotalKeys != 2 {
		t.Errorf("created session = %+v", created)
	}

	ts.waitForSessions()

	rr = ts.do(t, http.MethodGet, "/v1/sessions/"+created.ID.String()+"/records", nil)
	records := decode[[]nfce.DownloadRecord](t, rr)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec.Method != nfce.MethodPortal || rec.Status != nfce.RecordSuccess {
			t.Errorf("record %s: method %s status %s", rec.Key, rec.Method, rec.Status)
		}
	}
}

func TestPeriodSearchErrors(t *testing.T) {
	ts := newTestServer(t, stubPinger{}, stubSearcher{err: nfce.NewUnexpectedStatusError(500, "portal returned 500")})

	tests := []struct {
		name       string
		start, end string
		wantStatus int
	}{
		{"bad date", "01/03/2026", "2026-03-31", http.StatusBadRequest},
		{"missing end", "2026-03-01", "", http.StatusBadRequest},
		{"end before start", "2026-03-31", "2026-03-01", http.StatusBadRequest},
		{"range too long", "2026-01-01", "2026-03-31", http.StatusBadRequest},
		{"portal failure", "2026-03-01", "2026-03-02", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/v1/period-searches", handlers.PeriodSearchRequest{
				OwnerID: ownerID,
				Start:   tt.start,
				End:     tt.end,
				Token:   ts.token,
			})
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestInspectCredential(t *testing.T) {
	ts := newTestServer(t, stubPinger{}, stubSearcher{})
	expired := credtestutil.NewToken(taxpayerID, time.Now().Add(-time.Hour))

	tests := []struct {
		name         string
		body         handlers.InspectRequest
		wantStatus   int
		wantValid    bool
		wantProtocol string
	}{
		{"valid token", handlers.InspectRequest{Token: ts.token}, http.StatusOK, true, ""},
		{"expired token", handlers.InspectRequest{Token: expired}, http.StatusOK, false, ""},
		{"malformed token", handlers.InspectRequest{Token: "abc.def"}, http.StatusBadRequest, false, ""},
		{
			"portal url",
			handlers.InspectRequest{URL: "https://portal.example.com/portalcfews/nfce/fiscal-coupons/xml/900001?chaveAcesso=" + keyA + "&apiKey=" + ts.token},
			http.StatusOK, true, "900001",
		},
		{"foreign url", handlers.InspectRequest{URL: "https://evil.example.com/x?apiKey=" + ts.token}, http.StatusBadRequest, false, ""},
		{"neither", handlers.InspectRequest{}, http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/v1/credentials/inspect", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if rr.Code != http.StatusOK {
				return
			}
			got := decode[handlers.InspectResponse](t, rr)
			if got.Valid != tt.wantValid {
				t.Errorf("valid = %v, want %v", got.Valid, tt.wantValid)
			}
			if got.Subject != taxpayerID {
				t.Errorf("subject = %s", got.Subject)
			}
			if got.ProtocolNumber != tt.wantProtocol {
				t.Errorf("protocol = %s, want %s", got.ProtocolNumber, tt.wantProtocol)
			}
			if !tt.wantValid && got.Reason == "" {
				t.Error("expected a reason for an invalid token")
			}
		})
	}
}

func TestHealthVersionMetrics(t *testing.T) {
	tests := []struct {
		name       string
		pinger     stubPinger
		path       string
		wantStatus int
		wantBody   string
	}{
		{"live", stubPinger{}, "/health/live", http.StatusOK, "OK"},
		{"ready", stubPinger{}, "/health/ready", http.StatusOK, `"ready"`},
		{"not ready", stubPinger{err: errors.New("connection refused")}, "/health/ready", http.StatusServiceUnavailable, "database unavailable"},
		{"version", stubPinger{}, "/version", http.StatusOK, `"version":"v1.0.0"`},
		{"metrics", stubPinger{}, "/metrics", http.StatusOK, "go_goroutines"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.pinger, stubSearcher{})
			rr := ts.do(t, http.MethodGet, tt.path, nil)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestBackgroundSessionsStop(t *testing.T) {
	b := newBackgroundSessions(slog.New(slog.DiscardHandler))
	if !b.Stop(time.Second) {
		t.Error("Stop with no running sessions should return immediately")
	}
	if b.ctx.Err() == nil {
		t.Error("Stop should cancel the session context")
	}
}

func TestCreateSessionDuringShutdown(t *testing.T) {
	ts := newTestServer(t, stubPinger{}, stubSearcher{})
	if !ts.srv.sessions.Stop(time.Second) {
		t.Fatal("Stop did not return")
	}

	rr := ts.do(t, http.MethodPost, "/v1/sessions", handlers.CreateSessionRequest{
		OwnerID:     ownerID,
		Keys:        []string{keyA},
		Certificate: ts.pfx,
		Password:    certPassword,
		Token:       ts.token,
	})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %s)", rr.Code, rr.Body.String())
	}
	errResp := decode[response.ErrorResponse](t, rr)
	if len(errResp.Errors) != 1 || errResp.Errors[0].ErrorCode != response.ErrCodeShuttingDown {
		t.Errorf("error response = %+v", errResp)
	}

	sessions, err := ts.store.ListSessionsByOwner(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("ListSessionsByOwner: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != nfce.SessionFailed || sessions[0].ProcessedKeys != 0 {
		t.Errorf("refused session = %+v", sessions)
	}
}

func TestLaunchConcurrentWithStop(t *testing.T) {
	ts := newTestServer(t, stubPinger{}, stubSearcher{})
	processor := session.NewProcessor(ts.store, ts.blobs, func(*crypto.CertificateMaterial) (session.Retriever, error) {
		return stubRetriever{}, nil
	}, session.Config{}, slog.New(slog.DiscardHandler))

	const launches = 20
	runs := make([]*session.Run, launches)
	for i := range runs {
		run, err := processor.Prepare(context.Background(), session.Request{
			OwnerID:  ownerID,
			Keys:     []nfce.DocumentKey{keyA},
			PFX:      ts.pfx,
			Password: certPassword,
			Token:    ts.token,
		})
		if err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		runs[i] = run
	}

	var wg sync.WaitGroup
	for _, run := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ts.srv.sessions.Launch(run)
		}()
	}
	if !ts.srv.sessions.Stop(5 * time.Second) {
		t.Error("Stop timed out")
	}
	wg.Wait()
	ts.srv.sessions.wg.Wait()

	sessions, err := ts.store.ListSessionsByOwner(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("ListSessionsByOwner: %v", err)
	}
	for _, s := range sessions {
		if s.Status == nfce.SessionInProgress {
			t.Errorf("session %s was left in progress", s.ID)
		}
	}
}
