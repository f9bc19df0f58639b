package sefaz

// sample authority responses used across the package tests

const authorizedResponse = `<?xml version="1.0" encoding="utf-8"?><soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><nfeResultMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NFeConsultaProtocolo4"><retConsSitNFe versao="4.00" xmlns="http://www.portalfiscal.inf.br/nfe"><tpAmb>1</tpAmb><verAplic>RS20240501</verAplic><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo><cUF>23</cUF><dhRecbto>2024-05-10T10:00:00-03:00</dhRecbto><chNFe>23240512345678000190650010000012341000012345</chNFe><protNFe versao="4.00"><infProt Id="ID323240000123456"><tpAmb>1</tpAmb><verAplic>RS20240501</verAplic><chNFe>23240512345678000190650010000012341000012345</chNFe><dhRecbto>2024-05-10T09:59:00-03:00</dhRecbto><nProt>323240000123456</nProt><digVal>abc=</digVal><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo></infProt></protNFe></retConsSitNFe></nfeResultMsg></soap:Body></soap:Envelope>`

const statusOnlyResponse = `<?xml version="1.0" encoding="utf-8"?><soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><nfeResultMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NFeConsultaProtocolo4"><retConsSitNFe versao="4.00" xmlns="http://www.portalfiscal.inf.br/nfe"><tpAmb>1</tpAmb><cStat>217</cStat><xMotivo>Rejeicao: NF-e nao consta na base de dados da SEFAZ</xMotivo><cUF>23</cUF><chNFe>23240512345678000190650010000012341000012345</chNFe></retConsSitNFe></nfeResultMsg></soap:Body></soap:Envelope>`

const bareProtocolResponse = `<retConsSitNFe><cStat>101</cStat><xMotivo>Cancelamento homologado</xMotivo><nProt>323240000999999</nProt></retConsSitNFe>`
