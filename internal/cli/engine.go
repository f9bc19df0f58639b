package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/nfce-downloader/internal/blob"
	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/portal"
	"github.com/information-sharing-networks/nfce-downloader/internal/session"
)

// secrets can be passed through the environment instead of flags so they stay out of shell history
const (
	tokenEnvVar    = "NFCE_TOKEN"
	passwordEnvVar = "NFCE_CERT_PASSWORD"
)

func resolveToken(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v := os.Getenv(tokenEnvVar); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("a bearer token is required (--token or %s)", tokenEnvVar)
}

func resolvePassword(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(passwordEnvVar)
}

// readPFX reads a PKCS#12 file and checks that it can be decoded with password
func readPFX(path, password string) ([]byte, *crypto.CertificateMaterial, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("a certificate file is required (--pfx)")
	}
	pfx, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	material, err := crypto.TransformPKCS12(pfx, password)
	if err != nil {
		return nil, nil, err
	}
	return pfx, material, nil
}

func newPortalClient() (*portal.Client, error) {
	return portal.NewClient(cfg.PortalConfig(nil), appLogger)
}

// engine holds the collaborators of the batch and search commands.
// Sessions live in memory for the lifetime of the command.
type engine struct {
	store     *session.MemoryStore
	blobs     *blob.FileStore
	portal    *portal.Client
	processor *session.Processor
}

func newEngine() (*engine, error) {
	sefazCfg, err := cfg.SefazConfig(nil)
	if err != nil {
		return nil, err
	}
	portalClient, err := newPortalClient()
	if err != nil {
		return nil, err
	}
	blobs, err := blob.NewFileStore(cfg.BlobDir)
	if err != nil {
		return nil, err
	}

	store := session.NewMemoryStore()
	newRetriever := session.NewRetrieverFactory(sefazCfg, portalClient, nil, appLogger)

	return &engine{
		store:     store,
		blobs:     blobs,
		portal:    portalClient,
		processor: session.NewProcessor(store, blobs, newRetriever, cfg.SessionConfig(nil), appLogger),
	}, nil
}

func (e *engine) Close() {
	_ = e.blobs.Close()
}

// SessionReport is printed when a batch or search command finishes
type SessionReport struct {
	Session nfce.Session          `json:"session"`
	BlobDir string                `json:"blobDir"`
	Records []nfce.DownloadRecord `json:"records"`
}

func (e *engine) report(cmd *cobra.Command, s *nfce.Session) error {
	records, err := e.store.ListRecords(cmd.Context(), s.ID)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, SessionReport{Session: *s, BlobDir: e.blobs.Dir(), Records: records}); err != nil {
		return err
	}
	if s.Status == nfce.SessionFailed {
		return fmt.Errorf("session failed: %s", s.ErrorMessage)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
