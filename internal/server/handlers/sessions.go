package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
	"github.com/information-sharing-networks/nfce-downloader/internal/logger"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/server/response"
	"github.com/information-sharing-networks/nfce-downloader/internal/session"
)

// Launcher runs the per-key loop of a prepared session in the background.
// Launch returns an error when the run was refused; the session is then already finished.
type Launcher interface {
	Launch(run *session.Run) error
}

// Preparer is implemented by *session.Processor
type Preparer interface {
	Prepare(ctx context.Context, req session.Request) (*session.Run, error)
}

// CreateSessionRequest starts a key list session.
// Exactly one of Keys and KeyListLocator must be set.
type CreateSessionRequest struct {
	OwnerID        string   `json:"ownerId"`
	Keys           []string `json:"keys,omitempty"`
	KeyListLocator string   `json:"keyListLocator,omitempty"`

	// Certificate is the base64 encoded PKCS#12 container
	Certificate []byte `json:"certificate"`
	Password    string `json:"password"`

	Token string `json:"token"`
}

// HandleCreateSession checks the session preconditions synchronously and then processes the keys
// in the background. The response is 202 with the session in progress.
//
// A failed precondition is stored as a failed session and returned as an error response.
func HandleCreateSession(processor Preparer, launcher Launcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.ContextRequestLogger(r.Context())

		var req CreateSessionRequest
		if err := decodeJSON(r, &req); err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		if (req.Keys == nil) == (req.KeyListLocator == "") {
			response.RespondWithError(w, r, response.NewMalformedRequestError("keys", "exactly one of keys and keyListLocator is required"))
			return
		}
		if req.Token == "" {
			response.RespondWithError(w, r, response.NewMalformedRequestError("token", "token is required"))
			return
		}

		var keys []nfce.DocumentKey
		if req.Keys != nil {
			keys = make([]nfce.DocumentKey, len(req.Keys))
			for i, k := range req.Keys {
				keys[i] = nfce.DocumentKey(k)
			}
		}

		run, err := processor.Prepare(r.Context(), session.Request{
			OwnerID:        req.OwnerID,
			Keys:           keys,
			KeyListLocator: req.KeyListLocator,
			PFX:            req.Certificate,
			Password:       req.Password,
			Token:          req.Token,
		})
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		s := run.Session()
		if err := launcher.Launch(run); err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		logger.ContextWithLogAttrs(r.Context(), slog.String("session_id", s.ID.String()))
		reqLogger.Info("session started",
			slog.String("session_id", s.ID.String()),
			slog.Int("total_keys", s.TotalKeys),
		)

		w.Header().Set("Location", "/v1/sessions/"+s.ID.String())
		response.RespondWithJSON(w, http.StatusAccepted, s)
	}
}

// HandleGetSession returns the current state of a session
func HandleGetSession(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := sessionIDParam(chi.URLParam(r, "sessionID"))
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		s, err := store.GetSession(r.Context(), id)
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}
		response.RespondWithJSON(w, http.StatusOK, s)
	}
}

// HandleListRecords returns the records of a session in processing order
func HandleListRecords(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := sessionIDParam(chi.URLParam(r, "sessionID"))
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		// an unknown session is a 404 rather than an empty list
		if _, err := store.GetSession(r.Context(), id); err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		records, err := store.ListRecords(r.Context(), id)
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}
		if records == nil {
			records = []nfce.DownloadRecord{}
		}
		response.RespondWithJSON(w, http.StatusOK, records)
	}
}

// HandleGetRecordXML serves the stored document of a successful record.
// A document that no longer matches the checksum recorded when it was downloaded is not served.
func HandleGetRecordXML(store session.Store, blobs session.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := sessionIDParam(chi.URLParam(r, "sessionID"))
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}
		key, err := nfce.ParseDocumentKey(chi.URLParam(r, "key"))
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		records, err := store.ListRecords(r.Context(), id)
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		var found *nfce.DownloadRecord
		for i, rec := range records {
			if rec.Key == key && rec.Status == nfce.RecordSuccess && rec.BlobLocator != "" {
				found = &records[i]
			}
		}
		if found == nil {
			response.RespondWithError(w, r, nfce.NewNotFoundError("no downloaded document for this key in the session"))
			return
		}

		data, err := blobs.ReadBlob(r.Context(), found.BlobLocator)
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}
		if found.Checksum != "" && !crypto.VerifyHash(data, found.Checksum) {
			response.RespondWithError(w, r, nfce.NewStorageError("stored document "+found.BlobLocator+" does not match its recorded checksum"))
			return
		}

		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+key.String()+`.xml"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// HandleListOwnerSessions lists an owner's sessions, newest first
func HandleListOwnerSessions(store session.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "ownerID")
		if err := nfce.ValidateOwnerID(ownerID); err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		sessions, err := store.ListSessionsByOwner(r.Context(), ownerID)
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}
		if sessions == nil {
			sessions = []nfce.Session{}
		}
		response.RespondWithJSON(w, http.StatusOK, sessions)
	}
}
