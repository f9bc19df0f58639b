package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/logger"
	"github.com/information-sharing-networks/nfce-downloader/internal/server/response"
	"github.com/information-sharing-networks/nfce-downloader/internal/session"
)

const dateLayout = "2006-01-02"

// PeriodPreparer is implemented by *session.PeriodSearch
type PeriodPreparer interface {
	Prepare(ctx context.Context, req session.PeriodRequest) (*session.Run, error)
}

type PeriodSearchRequest struct {
	OwnerID string `json:"ownerId"`

	// Start and End are calendar dates (YYYY-MM-DD), both included
	Start string `json:"start"`
	End   string `json:"end"`

	// TaxID defaults to the token subject
	TaxID string `json:"taxId,omitempty"`
	Token string `json:"token"`
}

// HandleCreatePeriodSearch searches the portal synchronously and downloads the listed documents
// in the background (202 with the session).
func HandleCreatePeriodSearch(search PeriodPreparer, launcher Launcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.ContextRequestLogger(r.Context())

		var req PeriodSearchRequest
		if err := decodeJSON(r, &req); err != nil {
			response.RespondWithError(w, r, err)
			return
		}

		start, err := parseDate("start", req.Start)
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}
		end, err := parseDate("end", req.End)
		if err != nil {
			response.RespondWithError(w, r, err)
			return
		}
		if req.Token == "" {
			response.RespondWithError(w, r, response.NewMalformedRequestError("token", "token is required"))
			return
		}

		run, err := search.Prepare(r.Context(), session.PeriodRequest{
			OwnerID: req.OwnerID,
			Start:   start,
			End:     end,
			TaxID:   req.TaxID,
			Token:   req.Token,
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
		reqLogger.Info("period search started",
			slog.String("session_id", s.ID.String()),
			slog.Int("total_keys", s.TotalKeys),
		)

		w.Header().Set("Location", "/v1/sessions/"+s.ID.String())
		response.RespondWithJSON(w, http.StatusAccepted, s)
	}
}

func parseDate(property, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, response.NewMalformedRequestError(property, fmt.Sprintf("%s is required", property))
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, response.NewMalformedRequestError(property, fmt.Sprintf("%s must be a date in YYYY-MM-DD format", property))
	}
	return t, nil
}
