package handlers

import (
	"net/http"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/portal"
	"github.com/information-sharing-networks/nfce-downloader/internal/server/response"
)

// AccessURLParser is implemented by *portal.Client
type AccessURLParser interface {
	ParseAccessURL(raw string) (*portal.AccessURL, error)
}

// InspectRequest carries either a bare token or a portal link containing one
type InspectRequest struct {
	Token string `json:"token,omitempty"`
	URL   string `json:"url,omitempty"`
}

type InspectResponse struct {
	credential.Validity

	// Reason explains why a well formed token is not valid
	Reason string `json:"reason,omitempty"`

	ProtocolNumber string           `json:"protocolNumber,omitempty"`
	Key            nfce.DocumentKey `json:"key,omitempty"`
}

// HandleInspectCredential reports the subject and expiry of a bearer token.
// Malformed tokens and links are rejected; expired tokens are reported with valid=false.
func HandleInspectCredential(parser AccessURLParser, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InspectRequest
		if err := decodeJSON(r, &req); err != nil {
			response.RespondWithError(w, r, err)
			return
		}
		if (req.Token == "") == (req.URL == "") {
			response.RespondWithError(w, r, response.NewMalformedRequestError("token", "exactly one of token and url is required"))
			return
		}

		var resp InspectResponse
		token := req.Token
		if req.URL != "" {
			access, err := parser.ParseAccessURL(req.URL)
			if err != nil {
				response.RespondWithError(w, r, err)
				return
			}
			token = access.Token
			resp.ProtocolNumber = access.ProtocolNumber
			resp.Key = access.Key
		}

		resp.Validity = credential.Check(token, now())
		if resp.Err != nil {
			if nfce.CodeOf(resp.Err) == nfce.ErrCodeMalformedCredential {
				response.RespondWithError(w, r, resp.Err)
				return
			}
			resp.Reason = resp.Err.Error()
		}

		response.RespondWithJSON(w, http.StatusOK, resp)
	}
}
