package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/nfce-downloader/internal/session"
)

var (
	batchOwner    string
	batchPFX      string
	batchPassword string
	batchToken    string
)

var batchCmd = &cobra.Command{
	Use:   "batch <key-list-file>",
	Short: "Download every key of a key list",
	Long: `Run a download session over a key list (one access key per line, first CSV column, optional header).

Documents are written to BLOB_DIR/downloads/<owner>/<session-id>/ together with a manifest.json.
Keys are processed one at a time; Ctrl-C stops the session after the current key.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchOwner, "owner", "local", "owner id used in the storage paths")
	batchCmd.Flags().StringVar(&batchPFX, "pfx", "", "PKCS#12 certificate file")
	batchCmd.Flags().StringVar(&batchPassword, "password", "", "certificate password (or NFCE_CERT_PASSWORD)")
	batchCmd.Flags().StringVar(&batchToken, "token", "", "portal bearer token (or NFCE_TOKEN)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	token, err := resolveToken(batchToken)
	if err != nil {
		return err
	}
	if batchPFX == "" {
		return fmt.Errorf("a certificate file is required (--pfx)")
	}
	pfx, err := os.ReadFile(batchPFX)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", batchPFX, err)
	}
	keyList, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	locator, err := e.blobs.PersistBlob(ctx, session.KeyListPath(batchOwner, uuid.New()), keyList)
	if err != nil {
		return err
	}

	s, err := e.processor.Run(ctx, session.Request{
		OwnerID:        batchOwner,
		KeyListLocator: locator,
		PFX:            pfx,
		Password:       resolvePassword(batchPassword),
		Token:          token,
	})
	if err != nil {
		return err
	}
	return e.report(cmd, s)
}
