package session

import (
	"path"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// blob paths are always slash separated and relative to the blob store root

func DocumentPath(ownerID string, sessionID uuid.UUID, key nfce.DocumentKey) string {
	return path.Join("downloads", ownerID, sessionID.String(), key.String()+".xml")
}

func ManifestPath(ownerID string, sessionID uuid.UUID) string {
	return path.Join("downloads", ownerID, sessionID.String(), "manifest.json")
}

// KeyListPath is where an uploaded key list is kept until a session reads it
func KeyListPath(ownerID string, listID uuid.UUID) string {
	return path.Join("key-lists", ownerID, listID.String()+".csv")
}
