package handlers

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/information-sharing-networks/nfce-downloader/internal/logger"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/server/response"
	"github.com/information-sharing-networks/nfce-downloader/internal/session"
)

type KeyListResponse struct {
	Locator       string   `json:"locator"`
	ValidCount    int      `json:"validCount"`
	InvalidCount  int      `json:"invalidCount"`
	Invalid       []string `json:"invalid,omitempty"`
	HeaderSkipped bool     `json:"headerSkipped"`
}

// HandleUploadKeyList stores an uploaded key list (text body, one key per line) for ?ownerId=.
// The returned locator is used as keyListLocator when creating a session.
func HandleUploadKeyList(blobs session.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.ContextRequestLogger(r.Context())

		ownerID := r.URL.Query().Get("ownerId")
		if err := nfce.ValidateOwnerID(ownerID); err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		data, err := readBody(r)
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		list, err := nfce.ParseKeyList(bytes.NewReader(data))
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}
		if len(list.Keys) == 0 {
			response.RespondWithError(w, r, nfce.NewValidationError("key list contains no valid access keys"))
			return
		}

		locator, err := blobs.PersistBlob(r.Context(), session.KeyListPath(ownerID, uuid.New()), data)
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		reqLogger.Info("key list stored",
			slog.String("locator", locator),
			slog.Int("valid", len(list.Keys)),
			slog.Int("invalid", len(list.Invalid)),
		)

		response.RespondWithJSON(w, http.StatusCreated, KeyListResponse{
			Locator:       locator,
			ValidCount:    len(list.Keys),
			InvalidCount:  len(list.Invalid),
			Invalid:       list.Invalid,
			HeaderSkipped: list.HeaderSkipped,
		})
	}
}
