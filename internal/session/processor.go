package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/information-sharing-networks/nfce-downloader/internal/credential"
	"github.com/information-sharing-networks/nfce-downloader/internal/crypto"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
)

// Observer receives the final status of every session (e.g. metrics)
type Observer interface {
	ObserveSession(source nfce.SessionSource, status nfce.SessionStatus)
}

type Config struct {
	// KeyRateLimit caps the number of keys processed per second within one session (0 = no limit)
	KeyRateLimit float64

	// Now is the clock used for credential checks and timestamps (defaults to time.Now)
	Now func() time.Time

	Observer Observer
}

// Processor runs key list sessions
type Processor struct {
	store        Store
	blobs        BlobStore
	newRetriever RetrieverFactory
	logger       *slog.Logger
	now          func() time.Time
	keyRateLimit float64
	observer     Observer
}

func NewProcessor(store Store, blobs BlobStore, newRetriever RetrieverFactory, cfg Config, logger *slog.Logger) *Processor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		store:        store,
		blobs:        blobs,
		newRetriever: newRetriever,
		logger:       logger,
		now:          now,
		keyRateLimit: cfg.KeyRateLimit,
		observer:     cfg.Observer,
	}
}

// Request describes a key list session.
//
// Keys are taken from Keys when it is non-nil, otherwise the key list stored at KeyListLocator is read.
type Request struct {
	// SessionID is optional (a new id is generated when it is uuid.Nil)
	SessionID uuid.UUID

	OwnerID        string
	Keys           []nfce.DocumentKey
	KeyListLocator string

	// PFX is the PKCS#12 container of the taxpayer's certificate
	PFX      []byte
	Password string

	Token string
}

// job is one unit of the per-key loop
type job struct {
	key nfce.DocumentKey

	// protocol is set when the protocol number is already known (period search)
	protocol string

	// invalid is set for entries that must not reach the network
	invalid error
}

// Run is a prepared session whose preconditions have passed. Execute runs the per-key loop.
type Run struct {
	p         *Processor
	session   nfce.Session
	jobs      []job
	retriever Retriever
	token     string
	logger    *slog.Logger
}

// Session returns the session as it was when the run was prepared
func (r *Run) Session() nfce.Session {
	return r.session
}

// Run prepares and executes a key list session
func (p *Processor) Run(ctx context.Context, req Request) (*nfce.Session, error) {
	run, err := p.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}

// Prepare creates the session and checks every precondition without making network calls:
// the key source can be read, the bearer credential is valid and the certificate can be decoded.
//
// When a precondition fails the session is stored as failed (with zero records) and the error is returned.
// Errors that prevented the session from being created at all are returned the same way.
func (p *Processor) Prepare(ctx context.Context, req Request) (*Run, error) {
	if err := nfce.ValidateOwnerID(req.OwnerID); err != nil {
		return nil, err
	}

	s := p.newSession(req.SessionID, req.OwnerID, nfce.SourceKeyList)
	logger := p.logger.With(slog.String("session_id", s.ID.String()), slog.String("owner_id", s.OwnerID))

	jobs, err := p.readKeys(ctx, req, logger)
	if err != nil {
		return nil, p.abort(ctx, &s, false, err, logger)
	}
	s.TotalKeys = len(jobs)

	if err := p.store.CreateSession(ctx, &s); err != nil {
		return nil, nfce.WrapStorageError(err, "failed to create session")
	}

	if _, err := credential.Validate(req.Token, p.now()); err != nil {
		return nil, p.abort(ctx, &s, true, err, logger)
	}

	if len(req.PFX) == 0 {
		return nil, p.abort(ctx, &s, true, nfce.NewCertificateError("a digital certificate is required"), logger)
	}
	material, err := crypto.TransformPKCS12(req.PFX, req.Password)
	if err != nil {
		return nil, p.abort(ctx, &s, true, err, logger)
	}
	if material.Expired(p.now()) {
		logger.Warn("certificate has expired, the authority will probably reject it",
			slog.Time("not_after", material.NotAfter))
	}

	retriever, err := p.newRetriever(material)
	if err != nil {
		return nil, p.abort(ctx, &s, true, err, logger)
	}

	logger.Info("session prepared",
		slog.Int("total_keys", s.TotalKeys),
		slog.Any("certificate", material),
	)

	return &Run{
		p:         p,
		session:   s,
		jobs:      jobs,
		retriever: retriever,
		token:     req.Token,
		logger:    logger,
	}, nil
}

func (p *Processor) newSession(id uuid.UUID, ownerID string, source nfce.SessionSource) nfce.Session {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return nfce.Session{
		ID:        id,
		OwnerID:   ownerID,
		Source:    source,
		Status:    nfce.SessionInProgress,
		CreatedAt: p.now().UTC(),
	}
}

// readKeys returns one job per key. Keys supplied directly are checked again: malformed entries
// become failed records instead of network calls.
func (p *Processor) readKeys(ctx context.Context, req Request, logger *slog.Logger) ([]job, error) {
	if req.Keys != nil {
		jobs := make([]job, 0, len(req.Keys))
		for _, k := range req.Keys {
			j := job{key: k}
			if !nfce.ValidDocumentKey(string(k)) {
				j.invalid = nfce.NewValidationError(fmt.Sprintf("invalid access key %q", string(k)))
			}
			jobs = append(jobs, j)
		}
		return jobs, nil
	}

	if req.KeyListLocator == "" {
		return nil, nfce.NewValidationError("no keys or key list supplied")
	}

	data, err := p.blobs.ReadBlob(ctx, req.KeyListLocator)
	if err != nil {
		if nfce.CodeOf(err) == nfce.ErrCodeNotFound {
			return nil, err
		}
		return nil, nfce.WrapStorageError(err, "failed to read key list")
	}
	list, err := nfce.ParseKeyList(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(list.Invalid) > 0 {
		logger.Warn("key list contains invalid entries",
			slog.Int("invalid", len(list.Invalid)),
			slog.Bool("header_skipped", list.HeaderSkipped),
		)
	}

	jobs := make([]job, 0, len(list.Keys))
	for _, k := range list.Keys {
		jobs = append(jobs, job{key: k})
	}
	return jobs, nil
}

// abort records a session that failed before its first key. The session is created first when needed.
// The returned error is cause, or a storage error if the failed session could not be stored.
func (p *Processor) abort(ctx context.Context, s *nfce.Session, created bool, cause error, logger *slog.Logger) error {
	ctx = context.WithoutCancel(ctx)

	logger.Warn("session failed before processing any key", slog.String("error", cause.Error()))

	if !created {
		if err := p.store.CreateSession(ctx, s); err != nil {
			logger.Error("failed to store failed session", slog.String("error", err.Error()))
			return nfce.WrapStorageError(err, "failed to create session")
		}
	}

	completedAt := p.now().UTC()
	if err := p.store.FinishSession(ctx, s.ID, nfce.SessionFailed, cause.Error(), completedAt); err != nil {
		logger.Error("failed to mark session as failed", slog.String("error", err.Error()))
		return nfce.WrapStorageError(err, "failed to finish session")
	}
	s.Status = nfce.SessionFailed
	s.ErrorMessage = cause.Error()
	s.CompletedAt = &completedAt

	p.observe(s)
	return cause
}

func (p *Processor) observe(s *nfce.Session) {
	if p.observer != nil {
		p.observer.ObserveSession(s.Source, s.Status)
	}
}

// Execute processes every key in order and returns the finished session.
//
// ctx is only checked between keys: a key that has started is always finished and recorded.
// When ctx is cancelled the remaining keys are skipped and the session ends failed.
// The returned error is only set when the final session state could not be stored.
func (r *Run) Execute(ctx context.Context) (*nfce.Session, error) {
	p := r.p
	s := r.session

	var limiter *rate.Limiter
	if p.keyRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.keyRateLimit), 1)
	}

	entries := make([]ManifestEntry, 0, len(r.jobs))
	var stopErr error

	for i, j := range r.jobs {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				stopErr = err
				break
			}
		}

		rec, err := r.processKey(context.WithoutCancel(ctx), j)
		if err != nil {
			// the key is not counted: the session cannot complete
			r.logger.Error("failed to store download record",
				slog.String("key", j.key.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		entries = append(entries, manifestEntry(rec))

		s.ProcessedKeys++
		if rec.Status == nfce.RecordSuccess {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}

		if err := p.store.UpdateSessionCounters(context.WithoutCancel(ctx), s.ID, s.ProcessedKeys, s.SuccessCount, s.FailureCount); err != nil {
			r.logger.Error("failed to update session counters",
				slog.Int("processed", s.ProcessedKeys),
				slog.String("error", err.Error()),
			)
		}

		r.logger.Debug("key processed",
			slog.Int("position", i+1),
			slog.Int("total", s.TotalKeys),
			slog.String("key", j.key.String()),
			slog.String("status", string(rec.Status)),
		)
	}

	return r.finish(ctx, &s, stopErr, entries)
}

// processKey retrieves one key, stores the document and appends its record.
// The only error returned is a failure to append the record.
func (r *Run) processKey(ctx context.Context, j job) (*nfce.DownloadRecord, error) {
	p := r.p

	var res nfce.Result
	switch {
	case j.invalid != nil:
		res = nfce.Failed(j.invalid, "", "")
	case j.protocol != "":
		res = r.retriever.RetrieveWithProtocol(ctx, j.key, j.protocol, r.token)
	default:
		res = r.retriever.Retrieve(ctx, j.key, r.token)
	}

	now := p.now().UTC()
	rec := &nfce.DownloadRecord{
		ID:             uuid.New(),
		SessionID:      r.session.ID,
		Key:            j.key,
		Status:         nfce.RecordStatusFor(res),
		Method:         res.Method,
		ProtocolNumber: res.ProtocolNumber,
		StatusCode:     res.StatusCode,
		CreatedAt:      now,
	}

	if res.Success {
		if err := r.storeDocument(ctx, rec, []byte(res.XMLContent)); err != nil {
			rec.Status = nfce.RecordFailed
			rec.Method = ""
			rec.ErrorCode = nfce.CodeOf(err)
			rec.ErrorMessage = err.Error()
		} else {
			rec.DownloadedAt = &now
		}
	} else {
		rec.ErrorCode = nfce.CodeOf(res.Err)
		rec.ErrorMessage = res.ErrorMessage()
		r.logger.Info("key retrieval failed",
			slog.String("key", j.key.String()),
			slog.String("error_code", string(rec.ErrorCode)),
			slog.String("error", rec.ErrorMessage),
		)
	}

	if err := p.store.AppendRecord(ctx, rec); err != nil {
		return nil, nfce.WrapStorageError(err, "failed to append download record")
	}
	return rec, nil
}

func (r *Run) storeDocument(ctx context.Context, rec *nfce.DownloadRecord, data []byte) error {
	checksum, err := crypto.Hash(data)
	if err != nil {
		return nfce.WrapInternalError(err, "retrieved document is empty")
	}

	locator, err := r.p.blobs.PersistBlob(ctx, DocumentPath(r.session.OwnerID, r.session.ID, rec.Key), data)
	if err != nil {
		return nfce.WrapStorageError(err, "failed to store document")
	}

	rec.BlobLocator = locator
	rec.Checksum = checksum
	return nil
}

// finish stores the terminal status. A session is completed only when every key was processed and recorded.
func (r *Run) finish(ctx context.Context, s *nfce.Session, stopErr error, entries []ManifestEntry) (*nfce.Session, error) {
	p := r.p
	ctx = context.WithoutCancel(ctx)

	switch {
	case stopErr != nil:
		s.Status = nfce.SessionFailed
		s.ErrorMessage = fmt.Sprintf("session stopped after %d of %d keys: %v", s.ProcessedKeys, s.TotalKeys, stopErr)
	case s.ProcessedKeys != s.TotalKeys:
		s.Status = nfce.SessionFailed
		s.ErrorMessage = fmt.Sprintf("%d of %d keys could not be recorded", s.TotalKeys-s.ProcessedKeys, s.TotalKeys)
	default:
		s.Status = nfce.SessionCompleted
	}

	// counters are written again in case an earlier update was lost
	if err := p.store.UpdateSessionCounters(ctx, s.ID, s.ProcessedKeys, s.SuccessCount, s.FailureCount); err != nil {
		r.logger.Error("failed to update session counters", slog.String("error", err.Error()))
	}

	completedAt := p.now().UTC()
	s.CompletedAt = &completedAt
	if err := p.store.FinishSession(ctx, s.ID, s.Status, s.ErrorMessage, completedAt); err != nil {
		r.logger.Error("failed to finish session", slog.String("error", err.Error()))
		return s, nfce.WrapStorageError(err, "failed to finish session")
	}

	r.logger.Info("session finished",
		slog.String("status", string(s.Status)),
		slog.Int("total", s.TotalKeys),
		slog.Int("processed", s.ProcessedKeys),
		slog.Int("success", s.SuccessCount),
		slog.Int("failure", s.FailureCount),
	)
	p.observe(s)

	p.writeManifest(ctx, &Manifest{
		SessionID:     s.ID,
		OwnerID:       s.OwnerID,
		Source:        s.Source,
		Status:        s.Status,
		TotalKeys:     s.TotalKeys,
		ProcessedKeys: s.ProcessedKeys,
		SuccessCount:  s.SuccessCount,
		FailureCount:  s.FailureCount,
		CompletedAt:   completedAt,
		Records:       entries,
	}, r.logger)

	return s, nil
}
