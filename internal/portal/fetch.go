package portal

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// FetchResult is a document downloaded from the portal
type FetchResult struct {
	XML            string
	ProtocolNumber string
	Key            nfce.DocumentKey
}

// FetchDocumentXML downloads the signed invoice XML for key, addressed by its protocol number.
//
// Errors (nfce codes):
//   - ErrCodeCredentialRejected: the token fails pre-flight validation or the portal answers 401
//   - ErrCodeDocumentNotFound: 404
//   - ErrCodeUnexpectedStatus: any other non-2xx status or a transport failure
//   - ErrCodeInvalidResponseShape: a 2xx body without an XML declaration and an NFe element
//
// The call is a plain read and may be repeated.
func (c *Client) FetchDocumentXML(ctx context.Context, protocolNumber string, key nfce.DocumentKey, token string) (*FetchResult, error) {
	if strings.TrimSpace(protocolNumber) == "" {
		return nil, nfce.NewValidationError("protocol number is required to fetch a document")
	}
	if err := c.preflight(token); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("chaveAcesso", key.String())
	query.Set("apiKey", token)
	endpoint := c.endpoint("/nfce/fiscal-coupons/xml/"+url.PathEscape(protocolNumber), query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nfce.WrapInternalError(err, "failed to create portal request")
	}
	req.Header.Set("Accept", "application/xml, text/xml, */*")

	status, body, err := c.do(req, "portal_fetch")
	if err != nil {
		return nil, err
	}

	c.logger.Debug("portal document fetch",
		slog.String("key", key.String()),
		slog.String("protocol", protocolNumber),
		slog.String("token", credential.Redact(token)),
		slog.Int("http_status", status),
		slog.Int("bytes", len(body)),
	)

	if status < 200 || status > 299 {
		return nil, statusError(status, body)
	}

	xml := string(body)
	if !strings.Contains(xml, "<?xml") || !strings.Contains(xml, "<NFe") {
		return nil, nfce.NewInvalidResponseShapeError("portal response is not an invoice XML document: " + snippet(body))
	}

	return &FetchResult{XML: xml, ProtocolNumber: protocolNumber, Key: key}, nil
}
