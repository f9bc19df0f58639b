package testutil

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// NewToken returns an unsigned-looking bearer token for sub that expires at exp.
// The signature segment is a placeholder: the engine never verifies it.
func NewToken(sub string, exp time.Time) string {
	return NewTokenWithClaims(map[string]any{
		"sub": sub,
		"exp": exp.Unix(),
		"iat": exp.Add(-6 * time.Hour).Unix(),
	})
}

// NewTokenWithClaims builds a token with an arbitrary claim set
func NewTokenWithClaims(claims map[string]any) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		panic(err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString([]byte("signature"))
}
