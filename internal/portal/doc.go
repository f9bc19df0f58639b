// portal package is the client for the state's consumer invoice portal REST API (Portal CFe/NFC-e).
//
// The portal authenticates with a bearer token issued to the taxpayer, sent as an apiKey query parameter
// for document downloads and as x-authentication-* headers for period searches.
package portal
