package nfce

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var ownerIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]{0,127}$`)

// ValidateOwnerID checks the id of the user that owns a session.
// Owner ids are used as storage path segments so separators and dot-only names are rejected.
func ValidateOwnerID(ownerID string) error {
	if !ownerIDPattern.MatchString(ownerID) {
		return NewValidationError(fmt.Sprintf("invalid owner id %q", ownerID))
	}
	return nil
}

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// SessionSource records how the keys of a session were obtained
type SessionSource string

const (
	SourceKeyList      SessionSource = "key_list"
	SourcePeriodSearch SessionSource = "period_search"
)

// Session tracks a batch of document retrievals.
//
// ProcessedKeys == SuccessCount + FailureCount and ProcessedKeys <= TotalKeys at every observable point.
// CompletedAt is set once the session leaves SessionInProgress.
type Session struct {
	ID            uuid.UUID     `json:"id"`
	OwnerID       string        `json:"ownerId"`
	Source        SessionSource `json:"source"`
	Status        SessionStatus `json:"status"`
	TotalKeys     int           `json:"totalKeys"`
	ProcessedKeys int           `json:"processedKeys"`
	SuccessCount  int           `json:"successCount"`
	FailureCount  int           `json:"failureCount"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

// Terminal reports whether the session has finished
func (s *Session) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}

type RecordStatus string

const (
	RecordPending  RecordStatus = "pending"
	RecordSuccess  RecordStatus = "success"
	RecordFailed   RecordStatus = "failed"
	RecordNotFound RecordStatus = "not_found"
)

// DownloadRecord is the outcome of one key within a session.
// BlobLocator and Checksum are set only for successful records.
type DownloadRecord struct {
	ID             uuid.UUID    `json:"id"`
	SessionID      uuid.UUID    `json:"sessionId"`
	Key            DocumentKey  `json:"key"`
	Status         RecordStatus `json:"status"`
	Method         Method       `json:"method,omitempty"`
	ProtocolNumber string       `json:"protocolNumber,omitempty"`
	StatusCode     string       `json:"statusCode,omitempty"`
	BlobLocator    string       `json:"blobLocator,omitempty"`
	Checksum       string       `json:"checksum,omitempty"`
	ErrorCode      ErrorCode    `json:"errorCode,omitempty"`
	ErrorMessage   string       `json:"errorMessage,omitempty"`
	DownloadedAt   *time.Time   `json:"downloadedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// RecordStatusFor maps a retrieval result to the status stored on its record.
// A portal "no document" answer is kept apart from other failures.
func RecordStatusFor(res Result) RecordStatus {
	if res.Success {
		return RecordSuccess
	}
	if CodeOf(res.Err) == ErrCodeDocumentNotFound {
		return RecordNotFound
	}
	return RecordFailed
}
