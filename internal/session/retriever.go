package session

import (
	"context"
	"log/slog"

	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/portal"
	"github.com/information-sharing-networks/nfce-downloader/internal/retrieval"
	"github.com/information-sharing-networks/nfce-downloader/internal/sefaz"
)

// Retriever is implemented by *retrieval.Orchestrator
type Retriever interface {
	Retrieve(ctx context.Context, key nfce.DocumentKey, token string) nfce.Result
	RetrieveWithProtocol(ctx context.Context, key nfce.DocumentKey, protocolNumber, token string) nfce.Result
}

// RetrieverFactory creates the retriever used by one session.
// material is nil for sessions that never consult the authority (period searches).
type RetrieverFactory func(material *crypto.CertificateMaterial) (Retriever, error)

// NewRetrieverFactory returns a factory that shares portalClient between sessions and creates a
// SOAP client for each session's certificate.
func NewRetrieverFactory(sefazCfg sefaz.Config, portalClient *portal.Client, recorder retrieval.Recorder, logger *slog.Logger) RetrieverFactory {
	return func(material *crypto.CertificateMaterial) (Retriever, error) {
		var consulter retrieval.Consulter
		if material != nil {
			client, err := sefaz.NewClient(sefazCfg, material, logger)
			if err != nil {
				return nil, err
			}
			consulter = client
		}

		var opts []retrieval.Option
		if recorder != nil {
			opts = append(opts, retrieval.WithRecorder(recorder))
		}
		return retrieval.New(consulter, portalClient, logger, opts...), nil
	}
}
