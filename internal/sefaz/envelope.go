package sefaz

import (
	"fmt"

	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// no line breaks or indentation: some endpoints reject them
const consultaEnvelope = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<soap12:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">` +
	`<soap12:Body>` +
	`<nfeDadosMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NfeConsulta4">` +
	`<consSitNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">` +
	`<tpAmb>%s</tpAmb><xServ>CONSULTAR</xServ><chNFe>%s</chNFe>` +
	`</consSitNFe>` +
	`</nfeDadosMsg>` +
	`</soap12:Body>` +
	`</soap12:Envelope>`

// BuildConsultaEnvelope returns the consSitNFe request body for key
func BuildConsultaEnvelope(key nfce.DocumentKey, env Environment) []byte {
	return fmt.Appendf(nil, consultaEnvelope, env.Code(), key)
}
