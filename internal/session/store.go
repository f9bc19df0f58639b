package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// Store persists sessions and their records.
//
// Counter updates carry absolute values so a retried or lost update is corrected by the next one.
type Store interface {
	CreateSession(ctx context.Context, s *nfce.Session) error
	UpdateSessionCounters(ctx context.Context, id uuid.UUID, processed, success, failure int) error
	FinishSession(ctx context.Context, id uuid.UUID, status nfce.SessionStatus, errorMessage string, completedAt time.Time) error
	AppendRecord(ctx context.Context, rec *nfce.DownloadRecord) error
	GetSession(ctx context.Context, id uuid.UUID) (*nfce.Session, error)
	ListSessionsByOwner(ctx context.Context, ownerID string) ([]nfce.Session, error)
	ListRecords(ctx context.Context, sessionID uuid.UUID) ([]nfce.DownloadRecord, error)
}

// BlobStore persists document bytes. The returned locator is opaque to the session package.
type BlobStore interface {
	PersistBlob(ctx context.Context, path string, data []byte) (string, error)
	ReadBlob(ctx context.Context, locator string) ([]byte, error)
}

// MemoryStore is a Store kept in process memory (CLI runs and tests).
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*nfce.Session
	records  map[uuid.UUID][]nfce.DownloadRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*nfce.Session),
		records:  make(map[uuid.UUID][]nfce.DownloadRecord),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *nfce.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return nfce.NewValidationError("session " + s.ID.String() + " already exists")
	}
	stored := *s
	m.sessions[s.ID] = &stored
	return nil
}

func (m *MemoryStore) UpdateSessionCounters(ctx context.Context, id uuid.UUID, processed, success, failure int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nfce.NewNotFoundError("session " + id.String() + " not found")
	}
	s.ProcessedKeys = processed
	s.SuccessCount = success
	s.FailureCount = failure
	return nil
}

func (m *MemoryStore) FinishSession(ctx context.Context, id uuid.UUID, status nfce.SessionStatus, errorMessage string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nfce.NewNotFoundError("session " + id.String() + " not found")
	}
	s.Status = status
	s.ErrorMessage = errorMessage
	s.CompletedAt = &completedAt
	return nil
}

func (m *MemoryStore) AppendRecord(ctx context.Context, rec *nfce.DownloadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[rec.SessionID]; !ok {
		return nfce.NewNotFoundError("session " + rec.SessionID.String() + " not found")
	}
	m.records[rec.SessionID] = append(m.records[rec.SessionID], *rec)
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*nfce.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nfce.NewNotFoundError("session " + id.String() + " not found")
	}
	c := *s
	return &c, nil
}

// ListSessionsByOwner returns the owner's sessions, newest first
func (m *MemoryStore) ListSessionsByOwner(ctx context.Context, ownerID string) ([]nfce.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []nfce.Session{}
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	slices.SortFunc(out, func(a, b nfce.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// ListRecords returns the session's records in the order they were appended
func (m *MemoryStore) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]nfce.DownloadRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, nfce.NewNotFoundError("session " + sessionID.String() + " not found")
	}
	return slices.Clone(m.records[sessionID]), nil
}
