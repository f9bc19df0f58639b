// sefaz package is the client for the state authority's NfeConsulta4 SOAP 1.2 web service.
//
// The request envelope is a fixed byte string (some endpoints reject incidental whitespace) and the
// response is read with pattern matching rather than an XML decoder: see extract.go.
//
// Calls are authenticated with the taxpayer's certificate over mutual TLS. A Client is built for one
// certificate and reused for every key of a session.
package sefaz
