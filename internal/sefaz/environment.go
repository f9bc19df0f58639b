package sefaz

import "fmt"

// Environment selects the authority environment (tpAmb)
type Environment string

const (
	Production Environment = "production"
	Staging    Environment = "staging"
)

// Default NfeConsulta4 endpoints (SVRS virtual authority, used by states without their own service)
const (
	ProductionConsultaURL = "https://nfe.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"
	StagingConsultaURL    = "https://nfe-homologacao.svrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"
)

// ParseEnvironment accepts "production" or "staging"
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case Production, Staging:
		return Environment(s), nil
	}
	return "", fmt.Errorf("invalid SEFAZ environment %q: must be production or staging", s)
}

// Code returns the tpAmb discriminator sent in the envelope
func (e Environment) Code() string {
	if e == Staging {
		return "2"
	}
	return "1"
}

// DefaultURL returns the consultation endpoint for the environment
func (e Environment) DefaultURL() string {
	if e == Staging {
		return StagingConsultaURL
	}
	return ProductionConsultaURL
}
