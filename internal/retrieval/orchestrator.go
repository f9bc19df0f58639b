// retrieval package decides, per key, which upstream supplies the invoice XML.
//
// The authority SOAP service resolves the protocol number (and sometimes embeds the authorization
// protocol); the portal returns the full signed document for a protocol number. Retrieve combines both
// and falls back to the SOAP fragment when the portal fails.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/portal"
	"github.com/information-sharing-networks/nfce-downloader/internal/sefaz"
)

// Consulter is implemented by *sefaz.Client
type Consulter interface {
	Consult(ctx context.Context, key nfce.DocumentKey) (*sefaz.Result, error)
}

// Fetcher is implemented by *portal.Client
type Fetcher interface {
	FetchDocumentXML(ctx context.Context, protocolNumber string, key nfce.DocumentKey, token string) (*portal.FetchResult, error)
}

// Recorder receives the outcome of every retrieval (e.g. metrics)
type Recorder interface {
	ObserveRetrieval(method nfce.Method, success bool, code nfce.ErrorCode)
}

type Orchestrator struct {
	soap     Consulter
	portal   Fetcher
	logger   *slog.Logger
	now      func() time.Time
	recorder Recorder
}

type Option func(*Orchestrator)

// WithClock sets the clock used for credential expiry checks
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an orchestrator. soap may be nil when only RetrieveWithProtocol is used (no certificate available).
func New(soap Consulter, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		soap:   soap,
		portal: fetcher,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Retrieve runs the hybrid flow for one key:
//
//  1. the bearer token must be valid (no network call otherwise)
//  2. the authority resolves the protocol number; a transport failure without an embedded document ends the attempt
//  3. without a protocol number the embedded protNFe is returned (method soap), or the attempt fails with ProtocolNumberMissing
//  4. a status other than authorized is logged and the flow continues
//  5. the portal document is returned (method hybrid)
//  6. if the portal fails the embedded protNFe is returned (method soap)
//  7. otherwise the portal error is returned
func (o *Orchestrator) Retrieve(ctx context.Context, key nfce.DocumentKey, token string) nfce.Result {
	res := o.retrieve(ctx, key, token)
	o.record(res)
	return res
}

func (o *Orchestrator) retrieve(ctx context.Context, key nfce.DocumentKey, token string) nfce.Result {
	if _, err := credential.Validate(token, o.now()); err != nil {
		return nfce.Failed(nfce.WrapCredentialRejectedError(err, "bearer credential is not usable"), "", "")
	}
	if o.soap == nil {
		return nfce.Failed(nfce.NewCertificateError("a digital certificate is required to consult the authority"), "", "")
	}

	soapResult, err := o.soap.Consult(ctx, key)
	embedded := soapResult.DocumentXML()
	if err != nil {
		if embedded == "" {
			return nfce.Failed(err, "", "")
		}
		o.logger.Warn("SOAP call failed but returned an embedded document",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}
	if soapResult == nil {
		soapResult = &sefaz.Result{}
	}

	status := soapResult.StatusCode
	protocol := soapResult.ProtocolNumber

	if protocol == "" {
		if embedded != "" {
			return nfce.Succeeded(nfce.MethodSOAP, embedded, "", status)
		}
		msg := fmt.Sprintf("protocol number missing (status: %s)", status)
		if soapResult.Reason != "" {
			msg = fmt.Sprintf("protocol number missing (status: %s %s)", status, soapResult.Reason)
		}
		return nfce.Failed(nfce.NewProtocolNumberMissingError(msg), "", status)
	}

	if status != nfce.AuthorizedStatus {
		o.logger.Warn("document is not authorized, trying the portal anyway",
			slog.String("key", key.String()),
			slog.String("cstat", status),
			slog.String("xmotivo", soapResult.Reason),
		)
	}

	doc, err := o.portal.FetchDocumentXML(ctx, protocol, key, token)
	if err == nil {
		return nfce.Succeeded(nfce.MethodHybrid, doc.XML, protocol, status)
	}

	if embedded != "" {
		o.logger.Info("portal fetch failed, using the SOAP protocol fragment",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		return nfce.Succeeded(nfce.MethodSOAP, embedded, protocol, status)
	}

	return nfce.Failed(err, protocol, status)
}

// RetrieveWithProtocol fetches a document whose protocol number is already known (from a period search),
// skipping the authority. Successful results have method portal.
func (o *Orchestrator) RetrieveWithProtocol(ctx context.Context, key nfce.DocumentKey, protocolNumber, token string) nfce.Result {
	res := o.retrieveWithProtocol(ctx, key, protocolNumber, token)
	o.record(res)
	return res
}

func (o *Orchestrator) retrieveWithProtocol(ctx context.Context, key nfce.DocumentKey, protocolNumber, token string) nfce.Result {
	if _, err := credential.Validate(token, o.now()); err != nil {
		return nfce.Failed(nfce.WrapCredentialRejectedError(err, "bearer credential is not usable"), protocolNumber, "")
	}
	if protocolNumber == "" {
		return nfce.Failed(nfce.NewProtocolNumberMissingError("protocol number missing from search result"), "", "")
	}

	doc, err := o.portal.FetchDocumentXML(ctx, protocolNumber, key, token)
	if err != nil {
		return nfce.Failed(err, protocolNumber, "")
	}
	return nfce.Succeeded(nfce.MethodPortal, doc.XML, protocolNumber, "")
}

func (o *Orchestrator) record(res nfce.Result) {
	if o.recorder == nil {
		return
	}
	var code nfce.ErrorCode
	if !res.Success {
		code = nfce.CodeOf(res.Err)
	}
	o.recorder.ObserveRetrieval(res.Method, res.Success, code)
}
