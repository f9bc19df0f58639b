package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	credtestutil "github.com/information-sharing-networks/nfce-downloader/internal/credential/testutil"
	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
	"github.com/information-sharing-networks/nfce-downloader/internal/crypto/testutil"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/portal"
	"github.com/information-sharing-networks/nfce-downloader/internal/retrieval"
	"github.com/information-sharing-networks/nfce-downloader/internal/sefaz"
)

const (
	keyA = nfce.DocumentKey("23240512345678000190650010000012341000012345")
	keyB = nfce.DocumentKey("23240512345678000190650010000012351000012346")
	keyC = nfce.DocumentKey("23240512345678000190650010000012361000012347")

	certPassword = "s3cret"
	taxpayerID   = "12345678000190"
)

func documentXML(key nfce.DocumentKey) string {
	return `<?xml version="1.0" encoding="UTF-8"?><nfeProc><NFe><infNFe Id="NFe` + key.String() + `"/></NFe></nfeProc>`
}

func validToken() string {
	return credtestutil.NewToken(taxpayerID, time.Now().Add(2*time.Hour))
}

// upstream fakes both remote services; calls counts every network call
type upstream struct {
	mu      sync.Mutex
	soap    map[nfce.DocumentKey]func() (*sefaz.Result, error)
	portal  map[string]func(key nfce.DocumentKey) (*portal.FetchResult, error)
	calls   int
	search  *portal.SearchResult
	lastReq portal.SearchRequest
}

func newUpstream() *upstream {
	return &upstream{
		soap:   make(map[nfce.DocumentKey]func() (*sefaz.Result, error)),
		portal: make(map[string]func(key nfce.DocumentKey) (*portal.FetchResult, error)),
	}
}

func (u *upstream) Consult(ctx context.Context, key nfce.DocumentKey) (*sefaz.Result, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if f, ok := u.soap[key]; ok {
		return f()
	}
	return &sefaz.Result{StatusCode: "217", Reason: "NF-e nao consta na base de dados"}, nil
}

func (u *upstream) FetchDocumentXML(ctx context.Context, protocolNumber string, key nfce.DocumentKey, token string) (*portal.FetchResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if f, ok := u.portal[protocolNumber]; ok {
		return f(key)
	}
	return nil, nfce.NewDocumentNotFoundError("document not found")
}

func (u *upstream) SearchAll(ctx context.Context, sr portal.SearchRequest, maxPages int) (*portal.SearchResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.lastReq = sr
	if u.search == nil {
		return nil, nfce.NewUnexpectedStatusError(500, "portal unavailable")
	}
	return u.search, nil
}

func (u *upstream) networkCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

// authorizeKey makes the authority resolve protocol for key and the portal return its document
func (u *upstream) authorizeKey(key nfce.DocumentKey, protocol string) {
	u.soap[key] = func() (*sefaz.Result, error) {
		return &sefaz.Result{StatusCode: "100", Reason: "Autorizado o uso da NF-e", ProtocolNumber: protocol}, nil
	}
	u.portal[protocol] = func(k nfce.DocumentKey) (*portal.FetchResult, error) {
		return &portal.FetchResult{XML: documentXML(k), ProtocolNumber: protocol, Key: k}, nil
	}
}

// factory builds real orchestrators over the fakes and remembers whether a certificate was supplied
type factory struct {
	up           *upstream
	withMaterial []bool
}

func (f *factory) new(material *crypto.CertificateMaterial) (Retriever, error) {
	f.withMaterial = append(f.withMaterial, material != nil)
	var consulter retrieval.Consulter
	if material != nil {
		consulter = f.up
	}
	return retrieval.New(consulter, f.up, slog.New(slog.DiscardHandler)), nil
}

type memBlobs struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	failing bool
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: make(map[string][]byte)}
}

func (m *memBlobs) PersistBlob(ctx context.Context, path string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return "", errors.New("disk full")
	}
	m.blobs[path] = append([]byte(nil), data...)
	return "mem://" + path, nil
}

func (m *memBlobs) ReadBlob(ctx context.Context, locator string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[strings.TrimPrefix(locator, "mem://")]
	if !ok {
		return nil, nfce.NewNotFoundError("blob not found")
	}
	return data, nil
}

func (m *memBlobs) get(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[path]
	return data, ok
}

type statusObserver struct {
	statuses []nfce.SessionStatus
}

func (o *statusObserver) ObserveSession(source nfce.SessionSource, status nfce.SessionStatus) {
	o.statuses = append(o.statuses, status)
}

type fixture struct {
	up       *upstream
	factory  *factory
	store    *MemoryStore
	blobs    *memBlobs
	observer *statusObserver
	proc     *Processor
	pfx      []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	bundle, err := testutil.NewPKCS12("Contribuinte Teste", certPassword)
	if err != nil {
		t.Fatalf("failed to create test certificate: %v", err)
	}

	f := &fixture{
		up:       newUpstream(),
		store:    NewMemoryStore(),
		blobs:    newMemBlobs(),
		observer: &statusObserver{},
		pfx:      bundle.PFX,
	}
	f.factory = &factory{up: f.up}
	f.proc = NewProcessor(f.store, f.blobs, f.factory.new, Config{Observer: f.observer}, slog.New(slog.DiscardHandler))
	return f
}

func (f *fixture) request(keys ...nfce.DocumentKey) Request {
	if keys == nil {
		keys = []nfce.DocumentKey{}
	}
	return Request{
		SessionID: uuid.New(),
		OwnerID:   "owner-1",
		Keys:      keys,
		PFX:       f.pfx,
		Password:  certPassword,
		Token:     validToken(),
	}
}

func (f *fixture) records(t *testing.T, id uuid.UUID) []nfce.DownloadRecord {
	t.Helper()
	recs, err := f.store.ListRecords(context.Background(), id)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	return recs
}

func (f *fixture) storedSession(t *testing.T, id uuid.UUID) *nfce.Session {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return s
}
