package nfce

import (
	"fmt"
	"regexp"
	"strings"
)

// DocumentKeyLength is the number of digits in an access key
const DocumentKeyLength = 44

var documentKeyPattern = regexp.MustCompile(`^[0-9]{44}$`)

// DocumentKey is a validated 44-digit invoice access key.
// Use ParseDocumentKey to create one from untrusted input.
type DocumentKey string

func (k DocumentKey) String() string { return string(k) }

// ValidDocumentKey reports whether s (after trimming surrounding whitespace) is exactly 44 decimal digits.
func ValidDocumentKey(s string) bool {
	return documentKeyPattern.MatchString(strings.TrimSpace(s))
}

// ParseDocumentKey trims s and returns it as a DocumentKey.
// The check digit is not verified: the authority is the judge of whether a well formed key exists.
func ParseDocumentKey(s string) (DocumentKey, error) {
	trimmed := strings.TrimSpace(s)
	if !documentKeyPattern.MatchString(trimmed) {
		return "", NewValidationError(fmt.Sprintf("invalid access key %q: must be %d digits", s, DocumentKeyLength))
	}
	return DocumentKey(trimmed), nil
}

// KeyFields are the fixed-width segments of an access key
type KeyFields struct {
	State            string `json:"state"`
	Year             string `json:"year"`
	Month            string `json:"month"`
	IssuerTaxID      string `json:"issuerTaxId"`
	Model            string `json:"model"`
	Series           string `json:"series"`
	Number           string `json:"number"`
	EmissionType     string `json:"emissionType"`
	EmitterIndicator string `json:"emitterIndicator"`
	Sequence         string `json:"sequence"`
	CheckDigit       string `json:"checkDigit"`
}

// Fields splits the key into its segments. The key must have been created by ParseDocumentKey.
func (k DocumentKey) Fields() KeyFields {
	s := string(k)
	if len(s) != DocumentKeyLength {
		return KeyFields{}
	}
	return KeyFields{
		State:            s[0:2],
		Year:             "20" + s[2:4],
		Month:            s[4:6],
		IssuerTaxID:      s[6:20],
		Model:            s[20:22],
		Series:           s[22:25],
		Number:           s[25:34],
		EmissionType:     s[34:35],
		EmitterIndicator: s[35:36],
		Sequence:         s[36:43],
		CheckDigit:       s[43:44],
	}
}
