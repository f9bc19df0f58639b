package credential

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential/testutil"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

func TestValidate(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`))

	tests := []struct {
		name     string
		token    string
		wantCode nfce.ErrorCode
		wantSub  string
	}{
		{"valid", testutil.NewToken("12345678000190", now.Add(time.Hour)), "", "12345678000190"},
		{"expired", testutil.NewToken("12345678000190", now.Add(-time.Minute)), nfce.ErrCodeExpiredCredential, "12345678000190"},
		{"expires exactly now", testutil.NewToken("12345678000190", now), nfce.ErrCodeExpiredCredential, "12345678000190"},
		{"two segments", "abc.def", nfce.ErrCodeMalformedCredential, ""},
		{"four segments", "a.b.c.d", nfce.ErrCodeMalformedCredential, ""},
		{"empty", "", nfce.ErrCodeMalformedCredential, ""},
		{"payload not json", header + "." + base64.RawURLEncoding.EncodeToString([]byte("not json")) + ".c2ln", nfce.ErrCodeMalformedCredential, ""},
		{"payload not base64", header + ".!!!.c2ln", nfce.ErrCodeMalformedCredential, ""},
		{"opaque header", "xxx." + strings.SplitN(testutil.NewToken("12345678000190", now.Add(time.Hour)), ".", 3)[1] + ".sig", "", "12345678000190"},
		{"padded payload", header + "." + base64.URLEncoding.EncodeToString([]byte(`{"sub":"12345678000190","exp":`+strconv.FormatInt(now.Add(time.Hour).Unix(), 10)+`}`)) + ".c2ln", "", "12345678000190"},
		{"missing exp", testutil.NewTokenWithClaims(map[string]any{"sub": "12345678000190"}), nfce.ErrCodeMalformedCredential, ""},
		{"missing sub", testutil.NewTokenWithClaims(map[string]any{"exp": now.Add(time.Hour).Unix()}), nfce.ErrCodeMalformedCredential, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := Validate(tt.token, now)

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if cred.Subject != tt.wantSub {
					t.Errorf("Subject = %q, want %q", cred.Subject, tt.wantSub)
				}
				return
			}

			var nfceErr *nfce.Error
			if !errors.As(err, &nfceErr) {
				t.Fatalf("expected *nfce.Error, got %v", err)
			}
			if nfceErr.Code() != tt.wantCode {
				t.Errorf("code = %q, want %q (%v)", nfceErr.Code(), tt.wantCode, err)
			}
			if tt.wantSub != "" && (cred == nil || cred.Subject != tt.wantSub) {
				t.Errorf("expected parsed credential with subject %q alongside the error", tt.wantSub)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	t.Run("valid token reports remaining lifetime", func(t *testing.T) {
		v := Check(testutil.NewToken("12345678000190", now.Add(5*time.Hour+12*time.Minute+30*time.Second)), now)
		if !v.Valid {
			t.Fatalf("expected valid, got error %v", v.Err)
		}
		if v.ExpiresIn != "5h 12m" {
			t.Errorf("ExpiresIn = %q, want %q", v.ExpiresIn, "5h 12m")
		}
		if v.Subject != "12345678000190" {
			t.Errorf("Subject = %q", v.Subject)
		}
	})

	t.Run("expired token keeps expiresAt", func(t *testing.T) {
		exp := now.Add(-2 * time.Hour)
		v := Check(testutil.NewToken("12345678000190", exp), now)
		if v.Valid {
			t.Fatal("expected invalid")
		}
		if v.ExpiresAt == nil || !v.ExpiresAt.Equal(exp) {
			t.Errorf("ExpiresAt = %v, want %v", v.ExpiresAt, exp)
		}
		if v.ExpiresIn != "" {
			t.Errorf("ExpiresIn = %q, want empty", v.ExpiresIn)
		}
		if nfce.CodeOf(v.Err) != nfce.ErrCodeExpiredCredential {
			t.Errorf("Err = %v", v.Err)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		v := Check("garbage", now)
		if v.Valid || v.ExpiresAt != nil {
			t.Errorf("unexpected validity %+v", v)
		}
	})
}

func TestRedact(t *testing.T) {
	token := testutil.NewToken("12345678000190", time.Now().Add(time.Hour))
	got := Redact(token)
	if len(got) >= len(token) || !strings.HasPrefix(token, strings.TrimSuffix(got, "...")) {
		t.Errorf("Redact() = %q", got)
	}
	if Redact("short") != "***" {
		t.Errorf("short tokens must be fully masked, got %q", Redact("short"))
	}

	cred := &Credential{Raw: token, Subject: "12345678000190", ExpiresAt: time.Now()}
	if strings.Contains(cred.LogValue().String(), token) {
		t.Error("LogValue leaks the raw token")
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0h 0m"},
		{59 * time.Second, "0h 0m"},
		{90 * time.Minute, "1h 30m"},
		{26*time.Hour + 5*time.Minute, "26h 5m"},
		{-time.Hour, "0h 0m"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.d); got != tt.want {
			t.Errorf("FormatRemaining(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
