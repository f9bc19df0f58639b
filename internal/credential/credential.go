// credential package reads the portal's bearer tokens.
//
// Tokens are issued by the portal and only inspected here: the signature is never verified because the
// engine holds no verification key. The portal itself is the authority on whether a token is accepted.
package credential

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// Credential is a structurally valid bearer token with the claims the engine relies on
type Credential struct {
	Raw string

	// Subject is the taxpayer id (CNPJ) the token was issued to
	Subject string

	ExpiresAt time.Time
}

// LogValue keeps the token out of logs
func (c *Credential) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("token", Redact(c.Raw)),
		slog.String("subject", c.Subject),
		slog.Time("expires_at", c.ExpiresAt),
	)
}

// Redact returns a short prefix of a token that is safe to log
func Redact(token string) string {
	const keep = 8
	if len(token) <= keep {
		return "***"
	}
	return token[:keep] + "..."
}

// Parse decodes a bearer token without checking its expiry.
//
// Returns an error with code nfce.ErrCodeMalformedCredential when the token does not have three
// dot separated segments, the payload cannot be decoded, or the exp or sub claims are missing.
// The header segment is not inspected.
func Parse(raw string) (*Credential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nfce.NewMalformedCredentialError("credential is empty")
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, nfce.NewMalformedCredentialError(fmt.Sprintf("invalid credential format: expected 3 segments, got %d", len(parts)))
	}

	// only the claims segment is read; the header and signature are opaque to the engine
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, nfce.WrapMalformedCredentialError(err, "failed to decode credential payload")
	}
	token := jwt.New()
	if err := json.Unmarshal(payload, token); err != nil {
		return nil, nfce.WrapMalformedCredentialError(err, "failed to decode credential payload")
	}

	exp, ok := token.Expiration()
	if !ok || exp.IsZero() {
		return nil, nfce.NewMalformedCredentialError("credential has no expiration claim")
	}
	sub, ok := token.Subject()
	if !ok || sub == "" {
		return nil, nfce.NewMalformedCredentialError("credential has no subject claim")
	}

	return &Credential{Raw: raw, Subject: sub, ExpiresAt: exp}, nil
}

// Validate parses the token and checks that it has not expired at now.
// A token whose expiry equals now is expired.
//
// Returns an error with code nfce.ErrCodeMalformedCredential or nfce.ErrCodeExpiredCredential.
func Validate(raw string, now time.Time) (*Credential, error) {
	cred, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if !cred.ExpiresAt.After(now) {
		return cred, nfce.NewExpiredCredentialError(fmt.Sprintf("credential expired at %s", cred.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	return cred, nil
}

// Validity describes a token for display to the user
type Validity struct {
	Valid     bool       `json:"valid"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	// ExpiresIn is the remaining lifetime formatted as "Xh Ym" (empty when not valid)
	ExpiresIn string `json:"expiresIn,omitempty"`

	Err error `json:"-"`
}

// Check reports whether the token is usable at now.
// Expired tokens are reported as not valid with ExpiresAt populated.
func Check(raw string, now time.Time) Validity {
	cred, err := Validate(raw, now)
	if cred == nil {
		return Validity{Valid: false, Err: err}
	}

	expiresAt := cred.ExpiresAt
	v := Validity{Subject: cred.Subject, ExpiresAt: &expiresAt, Err: err}
	if err == nil {
		v.Valid = true
		v.ExpiresIn = FormatRemaining(expiresAt.Sub(now))
	}
	return v
}

// FormatRemaining formats a duration as whole hours and minutes, e.g. "5h 12m"
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
