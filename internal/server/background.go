package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/information-sharing-networks/nfce-downloader/internal/server/response"
	"github.com/information-sharing-networks/nfce-downloader/internal/session"
)

// backgroundSessions runs session loops outside the request that created them
type backgroundSessions struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards stopped and every wg.Add
	mu      sync.Mutex
	stopped bool
}

func newBackgroundSessions(logger *slog.Logger) *backgroundSessions {
	ctx, cancel := context.WithCancel(context.Background())
	return &backgroundSessions{ctx: ctx, cancel: cancel, logger: logger}
}

// Launch starts run in the background. Once Stop has been called no new run is started: run is finished
// immediately (as a failed session with no keys processed) and a service unavailable error is returned.
func (b *backgroundSessions) Launch(run *session.Run) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		b.execute(run)
		return response.NewServiceUnavailableError("the server is shutting down")
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		b.execute(run)
	}()
	return nil
}

func (b *backgroundSessions) execute(run *session.Run) {
	if _, err := run.Execute(b.ctx); err != nil {
		s := run.Session()
		b.logger.Error("background session could not be finished",
			slog.String("session_id", s.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Stop cancels the running sessions and waits up to timeout for their current key to finish.
// Returns false if the timeout expired first.
func (b *backgroundSessions) Stop(timeout time.Duration) bool {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
