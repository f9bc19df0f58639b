package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// Manifest summarises a finished session and the checksum of every stored document.
// It is written as RFC 8785 canonical JSON next to the documents.
type Manifest struct {
	SessionID     uuid.UUID          `json:"sessionId"`
	OwnerID       string             `json:"ownerId"`
	Source        nfce.SessionSource `json:"source"`
	Status        nfce.SessionStatus `json:"status"`
	TotalKeys     int                `json:"totalKeys"`
	ProcessedKeys int                `json:"processedKeys"`
	SuccessCount  int                `json:"successCount"`
	FailureCount  int                `json:"failureCount"`
	CompletedAt   time.Time          `json:"completedAt"`
	Records       []ManifestEntry    `json:"records"`
}

type ManifestEntry struct {
	Key            nfce.DocumentKey  `json:"key"`
	Status         nfce.RecordStatus `json:"status"`
	Method         nfce.Method       `json:"method,omitempty"`
	ProtocolNumber string            `json:"protocolNumber,omitempty"`
	BlobLocator    string            `json:"blobLocator,omitempty"`
	Checksum       string            `json:"checksum,omitempty"`
	ErrorCode      nfce.ErrorCode    `json:"errorCode,omitempty"`
}

func manifestEntry(rec *nfce.DownloadRecord) ManifestEntry {
	return ManifestEntry{
		Key:            rec.Key,
		Status:         rec.Status,
		Method:         rec.Method,
		ProtocolNumber: rec.ProtocolNumber,
		BlobLocator:    rec.BlobLocator,
		Checksum:       rec.Checksum,
		ErrorCode:      rec.ErrorCode,
	}
}

// MarshalCanonical returns the canonical JSON form of the manifest and its SHA-256 checksum
func (m *Manifest) MarshalCanonical() ([]byte, string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, "", nfce.WrapInternalError(err, "failed to encode manifest")
	}
	canonical, err := crypto.CanonicalizeJSON(data)
	if err != nil {
		return nil, "", nfce.WrapInternalError(err, "failed to canonicalize manifest")
	}
	checksum, err := crypto.Hash(canonical)
	if err != nil {
		return nil, "", nfce.WrapInternalError(err, "failed to hash manifest")
	}
	return canonical, checksum, nil
}

// writeManifest stores the manifest of a finished session. Failures are logged only.
func (p *Processor) writeManifest(ctx context.Context, m *Manifest, logger *slog.Logger) {
	data, checksum, err := m.MarshalCanonical()
	if err != nil {
		logger.Warn("could not build session manifest", slog.String("error", err.Error()))
		return
	}

	locator, err := p.blobs.PersistBlob(ctx, ManifestPath(m.OwnerID, m.SessionID), data)
	if err != nil {
		logger.Warn("could not store session manifest", slog.String("error", err.Error()))
		return
	}

	logger.Info("session manifest stored",
		slog.String("locator", locator),
		slog.String("checksum", checksum),
	)
}
