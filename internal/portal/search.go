package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

const (
	DefaultPageSize = 100

	// searchDocumentType is the portal's filter value for NFC-e documents
	searchDocumentType = "100"
)

// SearchRequest selects the documents issued to TaxID between Start and End (inclusive, whole days)
type SearchRequest struct {
	Start    time.Time
	End      time.Time
	TaxID    string
	Token    string
	PageSize int

	// Page is 1-based (0 means 1)
	Page int
}

// SearchItem is one document returned by a period search.
// The portal's internal id doubles as the protocol number for FetchDocumentXML.
type SearchItem struct {
	ProtocolNumber string `json:"protocolNumber"`
	AccessKey      string `json:"accessKey"`
	EmissionDate   string `json:"emissionDate"`
	DocumentNumber string `json:"documentNumber"`
	Series         string `json:"series"`
	Type           string `json:"type"`
}

// SearchResult is one page (or, from SearchAll, every collected page) of a period search
type SearchResult struct {
	Items []SearchItem `json:"items"`

	// Total is the portal's count of matching documents (len(Items) when the portal omits it)
	Total int `json:"total"`

	Pages int `json:"pages"`
}

// flexString accepts JSON strings and numbers (the portal is not consistent)
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type searchResponse struct {
	Data []struct {
		ID             flexString `json:"id"`
		NumeroNotaNfce flexString `json:"numeroNotaNfce"`
		DataEmissao    flexString `json:"dataEmissao"`
		NumoDocFiscal  flexString `json:"numoDocFiscal"`
		NumSerieNfce   flexString `json:"numSerieNfce"`
		TipoNfce       flexString `json:"tipoNfce"`
	} `json:"data"`
	Total *int `json:"total"`
}

// SearchByPeriod fetches one page of documents issued in the request's date range.
//
// The range is widened to whole days (00:00:00 to 23:59:59). The taxpayer id and token are sent
// as x-authentication-taxid and x-authentication-token headers.
//
// Errors (nfce codes):
//   - ErrCodeValidation: missing tax id or End before Start
//   - ErrCodeCredentialRejected: the token fails pre-flight validation or the portal answers 401
//   - ErrCodeUnexpectedStatus: any other non-2xx status or a transport failure
//   - ErrCodeResponseParse: the body is not the expected JSON
func (c *Client) SearchByPeriod(ctx context.Context, sr SearchRequest) (*SearchResult, error) {
	if sr.TaxID == "" {
		return nil, nfce.NewValidationError("taxpayer id is required for a period search")
	}
	if sr.End.Before(sr.Start) {
		return nil, nfce.NewValidationError("period end date is before its start date")
	}
	if sr.PageSize <= 0 {
		sr.PageSize = DefaultPageSize
	}
	if sr.Page <= 0 {
		sr.Page = 1
	}
	if err := c.preflight(sr.Token); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("count", strconv.Itoa(sr.PageSize))
	query.Set("page", strconv.Itoa(sr.Page))
	query.Set("startDate", sr.Start.Format(time.DateOnly)+" 00:00:00")
	query.Set("endDate", sr.End.Format(time.DateOnly)+" 23:59:59")
	query.Set("startDateTime", "00:00")
	query.Set("endDateTime", "23:59")
	query.Set("type", searchDocumentType)
	query.Set("ultimaNota", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/nfce/coupons/extract", query), nil)
	if err != nil {
		return nil, nfce.WrapInternalError(err, "failed to create portal search request")
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("x-authentication-taxid", sr.TaxID)
	req.Header.Set("x-authentication-token", sr.Token)

	status, body, err := c.do(req, "portal_search")
	if err != nil {
		return nil, err
	}

	c.logger.Debug("portal period search",
		slog.String("tax_id", sr.TaxID),
		slog.String("start", sr.Start.Format(time.DateOnly)),
		slog.String("end", sr.End.Format(time.DateOnly)),
		slog.Int("page", sr.Page),
		slog.String("token", credential.Redact(sr.Token)),
		slog.Int("http_status", status),
	)

	if status < 200 || status > 299 {
		return nil, statusError(status, body)
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, nfce.WrapResponseParseError(err, "failed to decode portal search response")
	}

	result := &SearchResult{Items: make([]SearchItem, 0, len(decoded.Data)), Pages: 1}
	for _, d := range decoded.Data {
		result.Items = append(result.Items, SearchItem{
			ProtocolNumber: string(d.ID),
			AccessKey:      string(d.NumeroNotaNfce),
			EmissionDate:   string(d.DataEmissao),
			DocumentNumber: string(d.NumoDocFiscal),
			Series:         string(d.NumSerieNfce),
			Type:           string(d.TipoNfce),
		})
	}
	result.Total = len(result.Items)
	if decoded.Total != nil {
		result.Total = *decoded.Total
	}

	return result, nil
}

// SearchAll follows SearchByPeriod pages until Total items were collected, a page comes back
// empty, or maxPages pages were read (maxPages <= 0 means one page).
func (c *Client) SearchAll(ctx context.Context, sr SearchRequest, maxPages int) (*SearchResult, error) {
	if maxPages <= 0 {
		maxPages = 1
	}

	all := &SearchResult{Items: []SearchItem{}}
	for page := 1; page <= maxPages; page++ {
		sr.Page = page
		res, err := c.SearchByPeriod(ctx, sr)
		if err != nil {
			return nil, err
		}
		all.Pages = page
		all.Total = res.Total
		all.Items = append(all.Items, res.Items...)

		if len(res.Items) == 0 || len(all.Items) >= res.Total {
			break
		}
		if page == maxPages {
			c.logger.Warn("period search stopped at page limit",
				slog.Int("max_pages", maxPages),
				slog.Int("collected", len(all.Items)),
				slog.Int("total", res.Total),
			)
		}
	}

	return all, nil
}
