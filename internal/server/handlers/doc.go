// Package handlers provides the HTTP handlers of the download service.
//
// Handlers are factories that receive their collaborators and return an http.HandlerFunc.
// Errors are written with response.RespondWithError so every failure has the same JSON shape.
package handlers
