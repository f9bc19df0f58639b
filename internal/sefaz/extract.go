package sefaz

import (
	"regexp"
	"strings"
)

// The authority wraps its answer in a SOAP body whose namespace prefixes and element order vary between
// states, so fields are located by pattern instead of decoding the document.
var (
	statusPattern        = regexp.MustCompile(`<cStat>(.*?)</cStat>`)
	reasonPattern        = regexp.MustCompile(`<xMotivo>(.*?)</xMotivo>`)
	protocolPattern      = regexp.MustCompile(`<nProt>(.*?)</nProt>`)
	infProtPattern       = regexp.MustCompile(`<infProt[^>]*>[\s\S]*?<nProt>(.*?)</nProt>[\s\S]*?</infProt>`)
	protNFePattern       = regexp.MustCompile(`<protNFe[^>]*>[\s\S]*?</protNFe>`)
	retConsSitNFePattern = regexp.MustCompile(`<retConsSitNFe[^>]*>[\s\S]*?</retConsSitNFe>`)
)

// FragmentKind identifies which embedded element was found in a response
type FragmentKind string

const (
	FragmentNone FragmentKind = ""

	// FragmentProtNFe is the authorization protocol element; it is the usable document
	FragmentProtNFe FragmentKind = "protNFe"

	// FragmentRetConsSitNFe is the status-only wrapper; it carries no document
	FragmentRetConsSitNFe FragmentKind = "retConsSitNFe"
)

// Result holds the fields read from a consultation response.
// Empty strings mean the element was absent.
type Result struct {
	StatusCode     string
	Reason         string
	ProtocolNumber string
	Fragment       string
	FragmentKind   FragmentKind
	HTTPStatus     int
}

// DocumentXML returns the embedded protNFe element, or "" when the response has no usable document
func (r *Result) DocumentXML() string {
	if r == nil || r.FragmentKind != FragmentProtNFe {
		return ""
	}
	return r.Fragment
}

// ExtractResult reads status, reason, protocol number and the embedded fragment from a response body.
// A body with none of these fields yields an empty Result, not an error.
func ExtractResult(body string) *Result {
	r := &Result{
		StatusCode: firstSubmatch(statusPattern, body),
		Reason:     firstSubmatch(reasonPattern, body),
	}

	r.ProtocolNumber = firstSubmatch(infProtPattern, body)
	if r.ProtocolNumber == "" {
		r.ProtocolNumber = firstSubmatch(protocolPattern, body)
	}

	if m := protNFePattern.FindString(body); m != "" {
		r.Fragment, r.FragmentKind = m, FragmentProtNFe
	} else if m := retConsSitNFePattern.FindString(body); m != "" {
		r.Fragment, r.FragmentKind = m, FragmentRetConsSitNFe
	}

	return r
}

func firstSubmatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
