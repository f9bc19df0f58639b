package config

import (
	"fmt"

	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
	"github.com/information-sharing-networks/nfce-downloader/internal/portal"
	"github.com/information-sharing-networks/nfce-downloader/internal/sefaz"
	"github.com/information-sharing-networks/nfce-downloader/internal/session"
)

// SefazConfig returns the SOAP client configuration. The CA bundle is only read when
// server certificate verification is enabled.
func (e *Environment) SefazConfig(observer sefaz.Observer) (sefaz.Config, error) {
	env, err := sefaz.ParseEnvironment(e.SefazEnvironment)
	if err != nil {
		return sefaz.Config{}, err
	}

	tlsOpts := crypto.TLSOptions{InsecureSkipVerify: e.SefazInsecureSkipVerify}
	if !e.SefazInsecureSkipVerify {
		pool, err := crypto.LoadRootCAs(e.SefazCABundlePath)
		if err != nil {
			return sefaz.Config{}, fmt.Errorf("failed to load SEFAZ_CA_BUNDLE_PATH: %w", err)
		}
		tlsOpts.RootCAs = pool
	}

	return sefaz.Config{
		Environment: env,
		URL:         e.SefazConsultaURL,
		Timeout:     e.UpstreamTimeout,
		TLS:         tlsOpts,
		Observer:    observer,
	}, nil
}

func (e *Environment) PortalConfig(observer portal.Observer) portal.Config {
	return portal.Config{
		BaseURL:  e.PortalBaseURL,
		Timeout:  e.UpstreamTimeout,
		Observer: observer,
	}
}

func (e *Environment) SessionConfig(observer session.Observer) session.Config {
	return session.Config{
		KeyRateLimit: e.KeyRateLimitRPS,
		Observer:     observer,
	}
}

func (e *Environment) PeriodConfig() session.PeriodConfig {
	return session.PeriodConfig{
		MaxDays:  e.PeriodMaxDays,
		PageSize: e.PortalSearchPageSize,
		MaxPages: e.PortalSearchMaxPages,
	}
}
