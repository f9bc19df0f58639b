// Package cli implements nfce-cli, a command line front end to the retrieval engine.
//
// The CLI keeps sessions in memory and stores documents under BLOB_DIR, so it needs no database.
package cli

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/information-sharing-networks/nfce-downloader/internal/config"
	"github.com/information-sharing-networks/nfce-downloader/internal/logger"
	"github.com/information-sharing-networks/nfce-downloader/internal/version"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.Environment
	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "nfce-cli",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "NFC-e retrieval CLI",
	Long: `nfce-cli converts taxpayer certificates, inspects portal tokens and downloads NFC-e documents
from the authority SOAP service and the portal`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewCLIConfig()
		if err != nil {
			log.Printf("failed to load configuration: %v", err.Error())
			return err
		}

		appLogger = logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)
		return nil
	},
}

func Execute() {
	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	// an interrupt stops a running session between keys
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(certCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(searchCmd)
}
