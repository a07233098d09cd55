// Package syncer keeps the portfolio consistent between this device's local
// cache and the shared remote document.
//
// Every user edit schedules a debounced full-document write. Each write is
// tagged with a revision one above anything this device has produced or
// seen, and with the device id as origin.
//
// A pushed snapshot carrying this device's origin is an echo unless its
// revision is above every revision written here. A foreign snapshot is stale
// only when it is older than the last foreign snapshot applied, or is that
// same snapshot again; equal revisions from different origins are ordered by
// arrival, which is the order the store took them in. Fresh foreign snapshots
// are applied once no write is in flight and the grace period since the last
// user edit has elapsed. One rejected by the grace period is a conflict: the
// local state is re-sent, and the snapshot stays eligible if it is delivered
// again later. A foreign push that lands during a write is not lost: when the
// write finishes the shared document is reloaded and put through the same
// checks, so both devices settle on whatever the store holds last.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hedgebook/internal/clock"
	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/events"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
)

// Default timings.
const (
	DefaultDebounce     = time.Second
	DefaultGracePeriod  = 3 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

var (
	// ErrNotStarted is returned by mutations issued before Start completed.
	ErrNotStarted = errors.New("sync controller not started")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("sync controller closed")
)

// Config holds controller settings. Zero durations take the defaults.
type Config struct {
	DeviceID     string
	Debounce     time.Duration
	GracePeriod  time.Duration
	WriteTimeout time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects the time source driving the debounce and grace period.
func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) { ctrl.clock = c }
}

// WithEventBus publishes status and state changes on bus.
func WithEventBus(bus *events.Bus) Option {
	return func(ctrl *Controller) { ctrl.bus = bus }
}

// Controller mediates every read and write of the portfolio state.
type Controller struct {
	cfg    Config
	state  *portfolio.State
	local  LocalCache
	remote RemoteStore
	clock  clock.Clock
	bus    *events.Bus
	log    zerolog.Logger

	// flushMu is held for the whole of an outbound write; holding it is the
	// write guard.
	flushMu sync.Mutex

	mu           sync.Mutex
	started      bool
	closed       bool
	status       Status
	lastRevision uint64 // revision of the document currently held
	seenRevision uint64 // highest revision produced or received
	written      uint64 // highest revision this device wrote
	applied      version
	missed       bool // a foreign push was turned away by the write guard
	lastEdit     time.Time
	dirty        bool
	timer        clock.Timer
	cancelSub    func()
}

// version identifies a stored document.
type version struct {
	revision uint64
	origin   string
}

type pendingEvent struct {
	typ  events.EventType
	data events.EventData
}

// New creates a controller. remote may be nil, in which case the controller
// only maintains the local cache.
func New(cfg Config, state *portfolio.State, local LocalCache, remote RemoteStore, log zerolog.Logger, opts ...Option) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	c := &Controller{
		cfg:    cfg,
		state:  state,
		local:  local,
		remote: remote,
		clock:  clock.New(),
		log:    log.With().Str("component", "syncer").Str("device_id", cfg.DeviceID).Logger(),
		status: Status{State: StateIdle, DeviceID: cfg.DeviceID},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start loads the initial document and subscribes to remote changes. A remote
// document, when present, replaces everything; otherwise the local cache is
// used, and failing that the built-in defaults. Loading never writes.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("sync controller already started")
	}
	evts := c.setStateLocked(StateSyncing, "")
	c.mu.Unlock()
	c.emit(evts)

	doc, source, remoteErr := c.loadInitial(ctx)

	c.mu.Lock()
	c.state.Restore(doc)
	c.lastRevision = doc.Revision
	c.seenRevision = doc.Revision
	if doc.Origin == c.cfg.DeviceID {
		c.written = doc.Revision
	} else {
		c.applied = version{doc.Revision, doc.Origin}
	}
	c.started = true
	switch {
	case remoteErr != nil:
		evts = c.setStateLocked(StateError, remoteErr.Error())
	case c.remote != nil:
		now := c.clock.Now()
		c.status.LastSyncedAt = &now
		evts = c.setStateLocked(StateSynced, "")
	default:
		evts = c.setStateLocked(StateIdle, "")
	}
	evts = append(evts, pendingEvent{events.StateChanged, &events.StateChangedData{Source: source, Revision: doc.Revision}})
	c.mu.Unlock()
	c.emit(evts)

	c.log.Info().
		Str("source", source).
		Uint64("revision", doc.Revision).
		Int("positions", len(doc.Positions)).
		Msg("Initial document loaded")

	if c.remote == nil {
		return nil
	}

	cancel, err := c.remote.Subscribe(ctx, c.onRemote)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to subscribe to remote changes")
		c.mu.Lock()
		evts = c.setStateLocked(StateError, fmt.Sprintf("subscribe failed: %v", err))
		c.mu.Unlock()
		c.emit(evts)
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cancelSub = cancel
	c.mu.Unlock()
	return nil
}

func (c *Controller) loadInitial(ctx context.Context) (domain.Document, string, error) {
	var remoteErr error
	if c.remote != nil {
		doc, err := c.remote.Load(ctx)
		if err == nil && doc != nil {
			return *doc, "remote", nil
		}
		if err != nil {
			remoteErr = fmt.Errorf("failed to load remote document: %w", err)
			c.log.Warn().Err(err).Msg("Remote load failed, falling back to local cache")
		}
	}

	doc, err := c.local.Load(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Local cache load failed, using defaults")
	} else if doc != nil {
		return *doc, "local", remoteErr
	}
	return domain.DefaultDocument(), "default", remoteErr
}

// Mutate applies a user edit. fn runs under the controller lock; if it
// returns an error the state is rolled back and nothing is scheduled. A
// change stamps the last-edit time and schedules a debounced write.
func (c *Controller) Mutate(fn func(*portfolio.State) error) error {
	return c.mutate(fn, true)
}

// Update applies a programmatic change such as a quote refresh. It is
// persisted like an edit but does not open the grace period.
func (c *Controller) Update(fn func(*portfolio.State) error) error {
	return c.mutate(fn, false)
}

func (c *Controller) mutate(fn func(*portfolio.State) error, userEdit bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}

	before := c.state.Document()
	if err := fn(c.state); err != nil {
		c.state.Restore(before)
		c.mu.Unlock()
		return err
	}
	if !changed(before, c.state.Document()) {
		c.mu.Unlock()
		return nil
	}

	if userEdit {
		c.lastEdit = c.clock.Now()
	}
	c.dirty = true
	c.scheduleLocked()

	evts := c.setStateLocked(StateSyncing, "")
	evts = append(evts, pendingEvent{events.StateChanged, &events.StateChangedData{Source: "local", Revision: c.lastRevision}})
	c.mu.Unlock()
	c.emit(evts)
	return nil
}

func changed(before, after domain.Document) bool {
	a, errA := before.Encode()
	b, errB := after.Encode()
	if errA != nil || errB != nil {
		return true
	}
	return !bytes.Equal(a, b)
}

// View runs fn with read access to the state. fn must not modify it.
func (c *Controller) View(fn func(*portfolio.State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.state)
}

// Document returns a copy of the current document.
func (c *Controller) Document() domain.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Document()
}

// Status returns the current sync status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	s := c.status
	s.Revision = c.lastRevision
	s.Pending = c.dirty
	if s.LastSyncedAt != nil {
		t := *s.LastSyncedAt
		s.LastSyncedAt = &t
	}
	return s
}

// Flush writes any pending change immediately, bypassing the debounce.
func (c *Controller) Flush(ctx context.Context) error {
	return c.flush(ctx)
}

// Close stops the debounce timer and the remote subscription. Pending
// changes are not written; call Flush first to keep them.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	cancel := c.cancelSub
	c.cancelSub = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.log.Info().Msg("Sync controller closed")
}

func (c *Controller) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.clock.AfterFunc(c.cfg.Debounce, c.onTimer)
}

func (c *Controller) onTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	_ = c.flush(ctx)
}

// flush writes the current state to the local cache and then to the remote
// store. Failures set the error status and are not retried.
func (c *Controller) flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if !c.dirty || c.closed {
		c.mu.Unlock()
		c.recheckMissed(ctx)
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	rev := c.lastRevision
	if c.seenRevision > rev {
		rev = c.seenRevision
	}
	rev++
	c.lastRevision = rev
	c.seenRevision = rev
	c.written = rev
	c.state.Stamp(rev, c.cfg.DeviceID, c.clock.Now())
	doc := c.state.Document()
	c.dirty = false
	evts := c.setStateLocked(StateSyncing, "")
	c.mu.Unlock()
	c.emit(evts)

	var writeErr error
	if err := c.local.Save(ctx, doc); err != nil {
		c.log.Error().Err(err).Uint64("revision", rev).Msg("Local cache write failed")
		writeErr = fmt.Errorf("local cache write failed: %w", err)
	}
	if c.remote != nil {
		if err := c.remote.Save(ctx, doc); err != nil {
			c.log.Error().Err(err).Uint64("revision", rev).Msg("Remote write failed")
			writeErr = errors.Join(writeErr, fmt.Errorf("remote write failed: %w", err))
		}
	}

	c.mu.Lock()
	if writeErr != nil {
		evts = c.setStateLocked(StateError, writeErr.Error())
	} else {
		now := c.clock.Now()
		c.status.LastSyncedAt = &now
		next := StateSynced
		if c.dirty {
			next = StateSyncing
		}
		evts = c.setStateLocked(next, "")
	}
	c.mu.Unlock()
	c.emit(evts)

	if writeErr == nil {
		c.log.Debug().Uint64("revision", rev).Msg("Document persisted")
		c.recheckMissed(ctx)
	}
	return writeErr
}

// recheckMissed reloads the shared document when a foreign push was turned
// away while flushMu was held. The caller holds flushMu.
func (c *Controller) recheckMissed(ctx context.Context) {
	c.mu.Lock()
	missed := c.missed && c.remote != nil && !c.closed
	c.missed = false
	c.mu.Unlock()
	if !missed {
		return
	}

	doc, err := c.remote.Load(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to reload remote document after overlapping push")
		return
	}
	if doc != nil {
		c.consider(*doc)
	}
}

// onRemote handles a pushed remote snapshot.
func (c *Controller) onRemote(doc domain.Document) {
	if !c.flushMu.TryLock() {
		c.mu.Lock()
		if doc.Revision > c.seenRevision {
			c.seenRevision = doc.Revision
		}
		if doc.Origin != c.cfg.DeviceID {
			c.missed = true
		}
		c.mu.Unlock()
		c.reject(doc, RejectWriteInFlight)
		return
	}
	defer c.flushMu.Unlock()

	c.consider(doc)

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	c.recheckMissed(ctx)
}

// staleLocked reports whether doc is an echo of this device's own write or
// a foreign snapshot already superseded by one applied here.
func (c *Controller) staleLocked(doc domain.Document) bool {
	if doc.Origin == c.cfg.DeviceID {
		return doc.Revision <= c.written
	}
	if doc.Revision != c.applied.revision {
		return doc.Revision < c.applied.revision
	}
	return doc.Origin == c.applied.origin
}

// consider runs doc through the stale and grace checks and applies it. The
// caller holds flushMu.
func (c *Controller) consider(doc domain.Document) {
	c.mu.Lock()
	if c.closed || !c.started {
		c.mu.Unlock()
		return
	}
	if doc.Revision > c.seenRevision {
		c.seenRevision = doc.Revision
	}

	if c.staleLocked(doc) {
		c.mu.Unlock()
		c.reject(doc, RejectStale)
		return
	}

	now := c.clock.Now()
	if !c.lastEdit.IsZero() && now.Sub(c.lastEdit) < c.cfg.GracePeriod {
		c.status.Conflicts++
		c.dirty = true
		if c.timer == nil {
			c.scheduleLocked()
		}
		evts := []pendingEvent{{events.SyncStatusChanged, c.statusDataLocked()}}
		conflicts := c.status.Conflicts
		c.mu.Unlock()

		c.log.Warn().
			Uint64("remote_revision", doc.Revision).
			Str("remote_origin", doc.Origin).
			Int("conflicts", conflicts).
			Msg("Remote snapshot inside grace period, keeping local edits")
		c.reject(doc, RejectGracePeriod)
		c.emit(evts)
		return
	}

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.dirty = false
	c.state.Restore(doc)
	held := c.state.Document()
	c.lastRevision = doc.Revision
	if doc.Origin == c.cfg.DeviceID {
		c.written = doc.Revision
	} else {
		c.applied = version{doc.Revision, doc.Origin}
	}
	c.status.LastSyncedAt = &now
	evts := c.setStateLocked(StateSynced, "")
	evts = append(evts,
		pendingEvent{events.RemoteSnapshotApplied, &events.RemoteSnapshotData{Revision: doc.Revision, Origin: doc.Origin}},
		pendingEvent{events.StateChanged, &events.StateChangedData{Source: "remote", Revision: doc.Revision}},
	)
	c.mu.Unlock()
	c.emit(evts)

	c.log.Info().
		Uint64("revision", doc.Revision).
		Str("origin", doc.Origin).
		Msg("Applied remote snapshot")

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
	defer cancel()
	if err := c.local.Save(ctx, held); err != nil {
		c.log.Error().Err(err).Uint64("revision", doc.Revision).Msg("Failed to cache remote snapshot")
	}
}

func (c *Controller) reject(doc domain.Document, reason string) {
	if reason != RejectGracePeriod {
		c.log.Debug().
			Uint64("remote_revision", doc.Revision).
			Str("remote_origin", doc.Origin).
			Str("reason", reason).
			Msg("Ignored remote snapshot")
	}
	c.emit([]pendingEvent{{events.RemoteSnapshotRejected, &events.RemoteSnapshotData{
		Revision: doc.Revision,
		Origin:   doc.Origin,
		Reason:   reason,
	}}})
}

func (c *Controller) setStateLocked(s State, lastErr string) []pendingEvent {
	if c.status.State == s && c.status.LastError == lastErr {
		return nil
	}
	if s != StateError {
		lastErr = ""
	}
	c.status.State = s
	c.status.LastError = lastErr
	return []pendingEvent{{events.SyncStatusChanged, c.statusDataLocked()}}
}

func (c *Controller) statusDataLocked() *events.SyncStatusChangedData {
	s := c.statusLocked()
	return &events.SyncStatusChangedData{
		State:        string(s.State),
		Revision:     s.Revision,
		LastSyncedAt: s.LastSyncedAt,
		Error:        s.LastError,
		Conflicts:    s.Conflicts,
	}
}

func (c *Controller) emit(evts []pendingEvent) {
	if c.bus == nil {
		return
	}
	for _, e := range evts {
		c.bus.Emit(e.typ, "syncer", e.data)
	}
}
