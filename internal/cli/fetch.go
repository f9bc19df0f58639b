package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/retrieval"
	"github.com/information-sharing-networks/nfce-downloader/internal/sefaz"
)

var (
	fetchPFX      string
	fetchPassword string
	fetchToken    string
	fetchProtocol string
	fetchOut      string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <access-key>",
	Short: "Download the XML of one NFC-e",
	Long: `Download one document: the authority SOAP service resolves the protocol number (mutual TLS with
the taxpayer certificate) and the portal returns the signed XML.

With --protocol the authority is skipped and no certificate is needed.

Example:
  nfce-cli fetch 23240512345678000190650010000012341000012345 --pfx empresa.pfx --token "$TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchPFX, "pfx", "", "PKCS#12 certificate file")
	fetchCmd.Flags().StringVar(&fetchPassword, "password", "", "certificate password (or NFCE_CERT_PASSWORD)")
	fetchCmd.Flags().StringVar(&fetchToken, "token", "", "portal bearer token (or NFCE_TOKEN)")
	fetchCmd.Flags().StringVar(&fetchProtocol, "protocol", "", "known protocol number (skips the authority)")
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "output file (default <access-key>.xml)")
}

// FetchReport is printed after a fetch
type FetchReport struct {
	Key            nfce.DocumentKey `json:"key"`
	Success        bool             `json:"success"`
	Method         nfce.Method      `json:"method,omitempty"`
	ProtocolNumber string           `json:"protocolNumber,omitempty"`
	StatusCode     string           `json:"statusCode,omitempty"`
	File           string           `json:"file,omitempty"`
	ErrorCode      nfce.ErrorCode   `json:"errorCode,omitempty"`
	Error          string           `json:"error,omitempty"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	key, err := nfce.ParseDocumentKey(args[0])
	if err != nil {
		return err
	}
	token, err := resolveToken(fetchToken)
	if err != nil {
		return err
	}

	portalClient, err := newPortalClient()
	if err != nil {
		return err
	}

	var res nfce.Result
	if fetchProtocol != "" {
		res = retrieval.New(nil, portalClient, appLogger).RetrieveWithProtocol(cmd.Context(), key, fetchProtocol, token)
	} else {
		_, material, err := readPFX(fetchPFX, resolvePassword(fetchPassword))
		if err != nil {
			return err
		}
		sefazCfg, err := cfg.SefazConfig(nil)
		if err != nil {
			return err
		}
		soapClient, err := sefaz.NewClient(sefazCfg, material, appLogger)
		if err != nil {
			return err
		}
		res = retrieval.New(soapClient, portalClient, appLogger).Retrieve(cmd.Context(), key, token)
	}

	report := FetchReport{
		Key:            key,
		Success:        res.Success,
		Method:         res.Method,
		ProtocolNumber: res.ProtocolNumber,
		StatusCode:     res.StatusCode,
	}
	if !res.Success {
		report.ErrorCode = nfce.CodeOf(res.Err)
		report.Error = res.ErrorMessage()
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		return res.Err
	}

	out := fetchOut
	if out == "" {
		out = key.String() + ".xml"
	}
	if err := os.WriteFile(out, []byte(res.XMLContent), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	report.File = out

	return printJSON(cmd, report)
}
