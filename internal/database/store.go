package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// SessionStore persists download sessions and records in Postgres
type SessionStore struct {
	queries *Queries
}

func NewSessionStore(queries *Queries) *SessionStore {
	return &SessionStore{queries: queries}
}

func (s *SessionStore) CreateSession(ctx context.Context, sess *nfce.Session) error {
	_, err := s.queries.CreateSession(ctx, CreateSessionParams{
		ID:        sess.ID,
		OwnerID:   sess.OwnerID,
		Source:    string(sess.Source),
		Status:    string(sess.Status),
		TotalKeys: int32(sess.TotalKeys),
		CreatedAt: sess.CreatedAt,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nfce.NewValidationError(fmt.Sprintf("session %s already exists", sess.ID))
		}
		return nfce.WrapStorageError(err, "failed to create session")
	}
	return nil
}

func (s *SessionStore) UpdateSessionCounters(ctx context.Context, id uuid.UUID, processed, success, failure int) error {
	_, err := s.queries.UpdateSessionCounters(ctx, UpdateSessionCountersParams{
		ID:            id,
		ProcessedKeys: int32(processed),
		SuccessCount:  int32(success),
		FailureCount:  int32(failure),
	})
	if err != nil {
		return nfce.WrapStorageError(err, "failed to update session counters")
	}
	return nil
}

func (s *SessionStore) FinishSession(ctx context.Context, id uuid.UUID, status nfce.SessionStatus, errorMessage string, completedAt time.Time) error {
	n, err := s.queries.FinishSession(ctx, FinishSessionParams{
		ID:           id,
		Status:       string(status),
		ErrorMessage: text(errorMessage),
		CompletedAt:  pgtype.Timestamptz{Time: completedAt, Valid: true},
	})
	if err != nil {
		return nfce.WrapStorageError(err, "failed to finish session")
	}
	if n == 0 {
		return nfce.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	return nil
}

func (s *SessionStore) AppendRecord(ctx context.Context, rec *nfce.DownloadRecord) error {
	params := CreateRecordParams{
		ID:             rec.ID,
		SessionID:      rec.SessionID,
		AccessKey:      rec.Key.String(),
		Status:         string(rec.Status),
		Method:         text(string(rec.Method)),
		ProtocolNumber: text(rec.ProtocolNumber),
		StatusCode:     text(rec.StatusCode),
		BlobLocator:    text(rec.BlobLocator),
		Checksum:       text(rec.Checksum),
		ErrorCode:      text(string(rec.ErrorCode)),
		ErrorMessage:   text(rec.ErrorMessage),
		CreatedAt:      rec.CreatedAt,
	}
	if rec.DownloadedAt != nil {
		params.DownloadedAt = pgtype.Timestamptz{Time: *rec.DownloadedAt, Valid: true}
	}

	if err := s.queries.CreateRecord(ctx, params); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nfce.NewNotFoundError(fmt.Sprintf("session %s not found", rec.SessionID))
		}
		return nfce.WrapStorageError(err, "failed to append download record")
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id uuid.UUID) (*nfce.Session, error) {
	row, err := s.queries.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nfce.NewNotFoundError(fmt.Sprintf("session %s not found", id))
		}
		return nil, nfce.WrapStorageError(err, "failed to get session")
	}
	sess := sessionFromRow(row)
	return &sess, nil
}

func (s *SessionStore) ListSessionsByOwner(ctx context.Context, ownerID string) ([]nfce.Session, error) {
	rows, err := s.queries.ListSessionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, nfce.WrapStorageError(err, "failed to list sessions")
	}
	out := make([]nfce.Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, sessionFromRow(row))
	}
	return out, nil
}

func (s *SessionStore) ListRecords(ctx context.Context, sessionID uuid.UUID) ([]nfce.DownloadRecord, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.queries.ListRecordsBySession(ctx, sessionID)
	if err != nil {
		return nil, nfce.WrapStorageError(err, "failed to list download records")
	}
	out := make([]nfce.DownloadRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, recordFromRow(row))
	}
	return out, nil
}

func sessionFromRow(row DownloadSession) nfce.Session {
	sess := nfce.Session{
		ID:            row.ID,
		OwnerID:       row.OwnerID,
		Source:        nfce.SessionSource(row.Source),
		Status:        nfce.SessionStatus(row.Status),
		TotalKeys:     int(row.TotalKeys),
		ProcessedKeys: int(row.ProcessedKeys),
		SuccessCount:  int(row.SuccessCount),
		FailureCount:  int(row.FailureCount),
		ErrorMessage:  row.ErrorMessage.String,
		CreatedAt:     row.CreatedAt,
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		sess.CompletedAt = &t
	}
	return sess
}

func recordFromRow(row ListRecordsBySessionRow) nfce.DownloadRecord {
	rec := nfce.DownloadRecord{
		ID:             row.ID,
		SessionID:      row.SessionID,
		Key:            nfce.DocumentKey(row.AccessKey),
		Status:         nfce.RecordStatus(row.Status),
		Method:         nfce.Method(row.Method.String),
		ProtocolNumber: row.ProtocolNumber.String,
		StatusCode:     row.StatusCode.String,
		BlobLocator:    row.BlobLocator.String,
		Checksum:       row.Checksum.String,
		ErrorCode:      nfce.ErrorCode(row.ErrorCode.String),
		ErrorMessage:   row.ErrorMessage.String,
		CreatedAt:      row.CreatedAt,
	}
	if row.DownloadedAt.Valid {
		t := row.DownloadedAt.Time
		rec.DownloadedAt = &t
	}
	return rec
}

// text maps "" to NULL
func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
