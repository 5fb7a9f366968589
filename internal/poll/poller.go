// Package poll implements the snapshot polling fallback for transcript
// delivery.
package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meeting-sync-service/internal/models"
	"meeting-sync-service/internal/observability/logging"
	"meeting-sync-service/internal/observability/metrics"
	"meeting-sync-service/internal/provider"
)

// SnapshotFetcher fetches the full current transcript for a meeting.
// *provider.Client satisfies it.
type SnapshotFetcher interface {
	GetTranscript(ctx context.Context, meeting models.MeetingID) (*provider.TranscriptSnapshot, error)
}

// Poller repeatedly fetches the transcript snapshot on a fixed interval
// and hands each result to its callbacks. A failed cycle is reported but
// does not stop the loop.
//
// Callbacks are single-subscriber and invoked from the poll goroutine.
type Poller struct {
	fetcher  SnapshotFetcher
	meeting  models.MeetingID
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	running    bool
	onSnapshot func(*provider.TranscriptSnapshot)
	onError    func(error)
}

// New creates a poller for the given meeting.
func New(fetcher SnapshotFetcher, meeting models.MeetingID, interval time.Duration) *Poller {
	return &Poller{
		fetcher:  fetcher,
		meeting:  meeting,
		interval: interval,
		logger:   logging.WithMeeting(meeting.String()).With().Str("component", "poll").Logger(),
		metrics:  metrics.DefaultMetrics,
	}
}

// SetOnSnapshot registers the snapshot handler. Last registration wins.
func (p *Poller) SetOnSnapshot(h func(*provider.TranscriptSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSnapshot = h
}

// SetOnError registers the per-cycle error handler. Last registration wins.
func (p *Poller) SetOnError(h func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = h
}

// Start begins the polling loop with an immediate first fetch. It is a
// no-op if the loop is already running.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.running = true
	p.mu.Unlock()

	p.logger.Info().Dur("interval", p.interval).Msg("Starting transcript polling")
	go func() {
		defer close(done)
		p.loop(ctx)
	}()
}

// Stop cancels the loop and waits for it to exit, so no callbacks fire
// after Stop returns. Must not be called from inside a poll callback.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		p.logger.Info().Msg("Stopped transcript polling")
	}
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fetchOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetchOnce(ctx)
		}
	}
}

// fetchOnce runs a single cycle. The ctx check after the fetch guards
// against callbacks firing for a cycle that was in flight when Stop was
// called.
func (p *Poller) fetchOnce(ctx context.Context) {
	start := time.Now()
	snapshot, err := p.fetcher.GetTranscript(ctx, p.meeting)
	p.metrics.RecordPollCycle(errorCategory(err), err, time.Since(start).Seconds())

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		p.logger.Warn().Err(err).Msg("Transcript snapshot fetch failed")
		p.mu.Lock()
		h := p.onError
		p.mu.Unlock()
		if h != nil {
			h(err)
		}
		return
	}

	p.mu.Lock()
	h := p.onSnapshot
	p.mu.Unlock()
	if h != nil {
		h(snapshot)
	}
}

func errorCategory(err error) string {
	if err == nil {
		return "none"
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category.String()
	}
	return "transport"
}
