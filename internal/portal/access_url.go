package portal

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// AccessURL is what a user's copied portal viewer link tells us:
// https://<portal>/portalcfews/nfce/fiscal-coupons/xml/<protocol>?chaveAcesso=<key>&apiKey=<token>
type AccessURL struct {
	Token string `json:"-"`

	// TaxID is the token's subject
	TaxID string `json:"taxId"`

	// ProtocolNumber and Key are set when present in the link
	ProtocolNumber string           `json:"protocolNumber,omitempty"`
	Key            nfce.DocumentKey `json:"key,omitempty"`
}

// ParseAccessURL extracts the bearer token (and protocol and key, when present) from a portal link.
// host must match the link's host name.
func ParseAccessURL(raw, host string) (*AccessURL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, nfce.NewValidationError("not a valid URL")
	}
	if !strings.EqualFold(u.Hostname(), host) {
		return nil, nfce.NewValidationError(fmt.Sprintf("URL is not from the portal (%s)", host))
	}

	query := u.Query()
	token := query.Get("apiKey")
	if token == "" {
		return nil, nfce.NewValidationError("URL has no apiKey parameter")
	}

	cred, err := credential.Parse(token)
	if err != nil {
		return nil, err
	}

	access := &AccessURL{Token: cred.Raw, TaxID: cred.Subject}

	if dir, last := path.Split(u.Path); strings.HasSuffix(dir, "/fiscal-coupons/xml/") && last != "" {
		access.ProtocolNumber = last
	}
	if k := query.Get("chaveAcesso"); k != "" {
		key, err := nfce.ParseDocumentKey(k)
		if err != nil {
			return nil, err
		}
		access.Key = key
	}

	return access, nil
}

// ParseAccessURL parses a link to this client's portal
func (c *Client) ParseAccessURL(raw string) (*AccessURL, error) {
	return ParseAccessURL(raw, c.Host())
}
