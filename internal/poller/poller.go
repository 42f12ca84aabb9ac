// Package poller keeps a local snapshot of plans and folders fresh by
// polling the store.
//
// Consecutive refresh failures are counted. Once the count reaches the
// threshold the synchronizer reports itself degraded so the operator can be
// told, but polling continues; the next successful refresh clears it.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fpw-project/fpw/internal/types"
)

// DefaultErrorThreshold is the number of consecutive failures after which
// the synchronizer reports degraded.
const DefaultErrorThreshold = 3

// DefaultInterval is the poll period used when Start is given none.
const DefaultInterval = 10 * time.Second

// Lister is the read side of the store the synchronizer polls.
type Lister interface {
	ListPlans(ctx context.Context, filter types.PlanFilter) ([]*types.FlightPlan, error)
	ListFolders(ctx context.Context) ([]*types.Folder, error)
}

// Snapshot is the last successfully fetched state, with any optimistic
// overlay applied.
type Snapshot struct {
	Plans      []*types.FlightPlan `json:"plans"`
	Folders    []*types.Folder     `json:"folders"`
	FetchedAt  time.Time           `json:"fetched_at"`
	Degraded   bool                `json:"degraded"`
	ErrorCount int                 `json:"error_count"`
	LastError  string              `json:"last_error,omitempty"`
}

// Plan returns the plan with id from the snapshot, or nil.
func (s Snapshot) Plan(id string) *types.FlightPlan {
	for _, p := range s.Plans {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Config configures a Synchronizer.
type Config struct {
	Store          Lister
	ErrorThreshold int    // DefaultErrorThreshold when <= 0
	Cache          *Cache // optional; loaded on construction, saved after each success
	Log            *slog.Logger
}

// Synchronizer polls the store and publishes snapshots to subscribers.
type Synchronizer struct {
	store     Lister
	threshold int
	cache     *Cache
	log       *slog.Logger

	mu          sync.Mutex
	plans       []*types.FlightPlan
	folders     []*types.Folder
	fetchedAt   time.Time
	errCount    int
	lastErr     error
	overlay     map[string]types.ProcessingStatus
	subscribers []func(Snapshot)

	refreshMu sync.Mutex // serializes ticks

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Synchronizer. When a cache is configured and readable, the
// cached snapshot is served until the first refresh completes.
func New(cfg Config) *Synchronizer {
	s := &Synchronizer{
		store:     cfg.Store,
		threshold: cfg.ErrorThreshold,
		cache:     cfg.Cache,
		log:       cfg.Log,
		overlay:   make(map[string]types.ProcessingStatus),
	}
	if s.threshold <= 0 {
		s.threshold = DefaultErrorThreshold
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.cache != nil {
		snap, err := s.cache.Load()
		switch {
		case err == nil:
			s.plans, s.folders, s.fetchedAt = snap.Plans, snap.Folders, snap.FetchedAt
		case !errors.Is(err, ErrNoCache):
			s.log.Warn("ignoring unreadable snapshot cache", "path", s.cache.Path(), "error", err)
		}
	}
	return s
}

// Start polls every interval until ctx is cancelled or Stop is called. The
// first refresh runs immediately. Start returns an error if already running.
func (s *Synchronizer) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("synchronizer already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		_ = s.Refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Refresh(ctx)
			}
		}
	}()
	return nil
}

// Stop ends polling and waits for the loop to exit. Stop on a stopped
// synchronizer is a no-op.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Refresh runs a single tick: plans and folders are fetched concurrently and
// the snapshot replaced only if both succeed. Subscribers are notified after
// every tick, failed or not.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	var (
		plans   []*types.FlightPlan
		folders []*types.Folder
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		plans, err = s.store.ListPlans(gCtx, types.PlanFilter{})
		if err != nil {
			return fmt.Errorf("list plans: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		folders, err = s.store.ListFolders(gCtx)
		if err != nil {
			return fmt.Errorf("list folders: %w", err)
		}
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	if err != nil {
		s.errCount++
		s.lastErr = err
		count := s.errCount
		s.mu.Unlock()
		if count == s.threshold {
			s.log.Warn("poller degraded", "errors", count, "error", err)
		} else {
			s.log.Debug("refresh failed", "errors", count, "error", err)
		}
	} else {
		wasDegraded := s.errCount >= s.threshold
		s.plans, s.folders = plans, folders
		s.fetchedAt = time.Now().UTC()
		s.errCount = 0
		s.lastErr = nil
		s.reconcileLocked()
		s.mu.Unlock()
		if wasDegraded {
			s.log.Info("poller recovered")
		}
	}

	snap := s.Snapshot()
	if err == nil && s.cache != nil {
		if cerr := s.cache.Save(snap); cerr != nil {
			s.log.Warn("failed to save snapshot cache", "path", s.cache.Path(), "error", cerr)
		}
	}
	s.publish(snap)
	return err
}

// reconcileLocked drops overlay entries the store has caught up with. An
// entry stays while the store still reports the status the overlay replaced.
func (s *Synchronizer) reconcileLocked() {
	for id := range s.overlay {
		var found *types.FlightPlan
		for _, p := range s.plans {
			if p.ID == id {
				found = p
				break
			}
		}
		if found == nil || found.ProcessingStatus != types.ProcessingUnprocessed {
			delete(s.overlay, id)
		}
	}
}

// SetOverlay records an optimistic processing status for a plan. It is
// shown in snapshots until a refresh sees the store move the plan on.
func (s *Synchronizer) SetOverlay(planID string, status types.ProcessingStatus) {
	s.mu.Lock()
	s.overlay[planID] = status
	s.mu.Unlock()
	s.publish(s.Snapshot())
}

// ClearOverlay drops the optimistic status for a plan, typically because
// the write it anticipated failed.
func (s *Synchronizer) ClearOverlay(planID string) {
	s.mu.Lock()
	_, had := s.overlay[planID]
	delete(s.overlay, planID)
	s.mu.Unlock()
	if had {
		s.publish(s.Snapshot())
	}
}

// ResetErrorCount clears the consecutive failure count, leaving degraded
// mode. It is the operator's manual retry.
func (s *Synchronizer) ResetErrorCount() {
	s.mu.Lock()
	s.errCount = 0
	s.lastErr = nil
	s.mu.Unlock()
	s.publish(s.Snapshot())
}

// ErrorCount returns the number of consecutive failed refreshes.
func (s *Synchronizer) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCount
}

// Degraded reports whether the failure threshold has been reached.
func (s *Synchronizer) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCount >= s.threshold
}

// Snapshot returns a copy of the current state with the overlay applied.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Plans:      make([]*types.FlightPlan, 0, len(s.plans)),
		Folders:    make([]*types.Folder, 0, len(s.folders)),
		FetchedAt:  s.fetchedAt,
		Degraded:   s.errCount >= s.threshold,
		ErrorCount: s.errCount,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	for _, p := range s.plans {
		c := *p
		if status, ok := s.overlay[p.ID]; ok {
			c.ProcessingStatus = status
		}
		snap.Plans = append(snap.Plans, &c)
	}
	for _, f := range s.folders {
		c := *f
		snap.Folders = append(snap.Folders, &c)
	}
	return snap
}

// Subscribe registers fn to receive a snapshot after every tick and overlay
// change. fn runs on the polling goroutine and should return quickly.
func (s *Synchronizer) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Synchronizer) publish(snap Snapshot) {
	s.mu.Lock()
	subs := append([]func(Snapshot){}, s.subscribers...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
