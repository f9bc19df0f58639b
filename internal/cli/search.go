package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/nfce-downloader/internal/session"
)

var (
	searchOwner string
	searchStart string
	searchEnd   string
	searchTaxID string
	searchToken string
)

var searchCmd = &cobra.Command{
	Use:   "search --start YYYY-MM-DD --end YYYY-MM-DD",
	Short: "Download every NFC-e the portal lists for a period",
	Long: `Search the portal for the documents issued in a date range (both days included) and download
each of them. The portal returns the protocol numbers, so no certificate is needed.

The taxpayer id defaults to the token subject.`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchOwner, "owner", "local", "owner id used in the storage paths")
	searchCmd.Flags().StringVar(&searchStart, "start", "", "first day (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchEnd, "end", "", "last day (YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchTaxID, "tax-id", "", "taxpayer id (defaults to the token subject)")
	searchCmd.Flags().StringVar(&searchToken, "token", "", "portal bearer token (or NFCE_TOKEN)")
	_ = searchCmd.MarkFlagRequired("start")
	_ = searchCmd.MarkFlagRequired("end")
}

func runSearch(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(time.DateOnly, searchStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, searchEnd)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}
	token, err := resolveToken(searchToken)
	if err != nil {
		return err
	}

	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	period := session.NewPeriodSearch(e.processor, e.portal, cfg.PeriodConfig())
	s, err := period.Run(cmd.Context(), session.PeriodRequest{
		OwnerID: searchOwner,
		Start:   start,
		End:     end,
		TaxID:   searchTaxID,
		Token:   token,
	})
	if err != nil {
		return err
	}
	return e.report(cmd, s)
}
