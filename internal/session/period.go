package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/nfce-downloader/internal/credential"
	"github.com/information-sharing-networks/nfce-downloader/internal/nfce"
	"github.com/information-sharing-networks/nfce-downloader/internal/portal"
)

// Searcher is implemented by *portal.Client
type Searcher interface {
	SearchAll(ctx context.Context, sr portal.SearchRequest, maxPages int) (*portal.SearchResult, error)
}

type PeriodConfig struct {
	// MaxDays is the longest accepted range in days, both ends included (0 = no limit)
	MaxDays int

	PageSize int
	MaxPages int
}

// PeriodSearch downloads every document the portal lists for a date range.
// The portal returns the protocol numbers, so the authority is never consulted.
type PeriodSearch struct {
	processor *Processor
	searcher  Searcher
	cfg       PeriodConfig
}

func NewPeriodSearch(processor *Processor, searcher Searcher, cfg PeriodConfig) *PeriodSearch {
	return &PeriodSearch{
		processor: processor,
		searcher:  searcher,
		cfg:       cfg,
	}
}

type PeriodRequest struct {
	// SessionID is optional (a new id is generated when it is uuid.Nil)
	SessionID uuid.UUID

	OwnerID string
	Start   time.Time
	End     time.Time

	// TaxID defaults to the subject of Token
	TaxID string
	Token string
}

// ValidateRange checks the date range of a period search (whole days, both ends included)
func (ps *PeriodSearch) ValidateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return nfce.NewValidationError("start and end dates are required")
	}
	startDay := truncateDay(start)
	endDay := truncateDay(end)
	if endDay.Before(startDay) {
		return nfce.NewValidationError("end date is before start date")
	}
	days := int(endDay.Sub(startDay).Hours()/24) + 1
	if ps.cfg.MaxDays > 0 && days > ps.cfg.MaxDays {
		return nfce.NewValidationError(fmt.Sprintf("period of %d days exceeds the maximum of %d days", days, ps.cfg.MaxDays))
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Run prepares and executes a period search session
func (ps *PeriodSearch) Run(ctx context.Context, req PeriodRequest) (*nfce.Session, error) {
	run, err := ps.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}

// Prepare validates the request, runs the portal search and creates the session with one key per
// search result.
//
// An invalid range is rejected before a session exists. Credential and search failures are stored as a
// failed session with zero records and returned.
func (ps *PeriodSearch) Prepare(ctx context.Context, req PeriodRequest) (*Run, error) {
	p := ps.processor

	if err := nfce.ValidateOwnerID(req.OwnerID); err != nil {
		return nil, err
	}
	if err := ps.ValidateRange(req.Start, req.End); err != nil {
		return nil, err
	}

	s := p.newSession(req.SessionID, req.OwnerID, nfce.SourcePeriodSearch)
	logger := p.logger.With(slog.String("session_id", s.ID.String()), slog.String("owner_id", s.OwnerID))

	cred, err := credential.Validate(req.Token, p.now())
	if err != nil {
		return nil, p.abort(ctx, &s, false, err, logger)
	}
	taxID := req.TaxID
	if taxID == "" {
		taxID = cred.Subject
	}

	found, err := ps.searcher.SearchAll(ctx, portal.SearchRequest{
		Start:    req.Start,
		End:      req.End,
		TaxID:    taxID,
		Token:    req.Token,
		PageSize: ps.cfg.PageSize,
	}, ps.cfg.MaxPages)
	if err != nil {
		return nil, p.abort(ctx, &s, false, err, logger)
	}

	jobs := make([]job, 0, len(found.Items))
	for _, item := range found.Items {
		key, err := nfce.ParseDocumentKey(item.AccessKey)
		j := job{key: key, protocol: item.ProtocolNumber}
		if err != nil {
			j.key = nfce.DocumentKey(item.AccessKey)
			j.invalid = err
		}
		jobs = append(jobs, j)
	}
	if len(found.Items) < found.Total {
		logger.Warn("period search returned fewer documents than the portal reported",
			slog.Int("collected", len(found.Items)),
			slog.Int("total", found.Total),
		)
	}

	s.TotalKeys = len(jobs)
	if err := p.store.CreateSession(ctx, &s); err != nil {
		return nil, nfce.WrapStorageError(err, "failed to create session")
	}

	retriever, err := p.newRetriever(nil)
	if err != nil {
		return nil, p.abort(ctx, &s, true, err, logger)
	}

	logger.Info("period search session prepared",
		slog.String("tax_id", taxID),
		slog.Time("start", req.Start),
		slog.Time("end", req.End),
		slog.Int("total_keys", s.TotalKeys),
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
