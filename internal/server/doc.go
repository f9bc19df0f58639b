// Package server provides the HTTP API of the NFC-e download service.
//
// The server is configured through environment variables (see internal/config).
// Sessions are prepared synchronously in the request and their per-key loop runs in the background;
// on shutdown the background sessions are cancelled, stop between keys and end failed.
//
// Handlers are in internal/server/handlers and middleware is in internal/server/middleware.
package server
