package sefaz

import (
	"strings"
	"testing"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

const testKey = nfce.DocumentKey("23240512345678000190650010000012341000012345")

func TestBuildConsultaEnvelope(t *testing.T) {
	want := `<?xml version="1.0" encoding="UTF-8"?><soap12:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap12="http://www.w3.org/2003/05/soap-envelope"><soap12:Body><nfeDadosMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NfeConsulta4"><consSitNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><tpAmb>1</tpAmb><xServ>CONSULTAR</xServ><chNFe>23240512345678000190650010000012341000012345</chNFe></consSitNFe></nfeDadosMsg></soap12:Body></soap12:Envelope>`

	got := string(BuildConsultaEnvelope(testKey, Production))
	if got != want {
		t.Errorf("envelope mismatch\n got: %s\nwant: %s", got, want)
	}

	staging := string(BuildConsultaEnvelope(testKey, Staging))
	if !strings.Contains(staging, "<tpAmb>2</tpAmb>") {
		t.Errorf("staging envelope must use tpAmb 2: %s", staging)
	}

	for _, ws := range []string{"\n", "\t", "> <"} {
		if strings.Contains(got, ws) {
			t.Errorf("envelope contains incidental whitespace %q", ws)
		}
	}
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in      string
		want    Environment
		wantURL string
		wantErr bool
	}{
		{"production", Production, ProductionConsultaURL, false},
		{"staging", Staging, StagingConsultaURL, false},
		{"homologacao", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEnvironment(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if !tt.wantErr && got.DefaultURL() != tt.wantURL {
				t.Errorf("DefaultURL() = %q, want %q", got.DefaultURL(), tt.wantURL)
			}
		})
	}
}
