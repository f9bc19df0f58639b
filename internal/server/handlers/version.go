package handlers

import (
	"net/http"

	"github.com/information-sharing-networks/nfce-downloader/internal/server/response"
	"github.com/information-sharing-networks/nfce-downloader/internal/version"
)

type VersionResponse struct {
	Version   string `json:"version" example:"1.0.0"`
	BuildTime string `json:"build_time" example:"2026-01-28T10:00:00Z"`
	GitCommit string `json:"git_commit"`
	Service   string `json:"service" example:"nfce-server"`
}

func HandleVersion(info version.Info) http.HandlerFunc {
	resp := VersionResponse{
		Version:   info.Version,
		BuildTime: info.BuildDate,
		GitCommit: info.GitCommit,
		Service:   "nfce-server",
	}

	return func(w http.ResponseWriter, r *http.Request) {
		response.RespondWithJSON(w, http.StatusOK, resp)
	}
}
