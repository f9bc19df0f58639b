package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

var tokenCmd = &cobra.Command{
	Use:   "token [token-or-portal-url]",
	Short: "Show the subject and expiry of a portal token",
	Long: `Decode a portal bearer token, or a portal XML link containing one (apiKey parameter), and
report the taxpayer id and the remaining lifetime. The signature is not verified.

Without an argument the token is read from NFCE_TOKEN.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runToken,
}

// TokenReport is the output of the token command
type TokenReport struct {
	credential.Validity
	Reason         string           `json:"reason,omitempty"`
	ProtocolNumber string           `json:"protocolNumber,omitempty"`
	Key            nfce.DocumentKey `json:"key,omitempty"`
}

func runToken(cmd *cobra.Command, args []string) error {
	input := ""
	if len(args) == 1 {
		input = args[0]
	}
	input, err := resolveToken(input)
	if err != nil {
		return err
	}

	var report TokenReport
	token := input
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		client, err := newPortalClient()
		if err != nil {
			return err
		}
		access, err := client.ParseAccessURL(input)
		if err != nil {
			return err
		}
		token = access.Token
		report.ProtocolNumber = access.ProtocolNumber
		report.Key = access.Key
	}

	report.Validity = credential.Check(token, time.Now())
	if report.Err != nil {
		if nfce.CodeOf(report.Err) == nfce.ErrCodeMalformedCredential {
			return report.Err
		}
		report.Reason = report.Err.Error()
	}
	return printJSON(cmd, report)
}
