package playback

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"signal-feed/internal/platform/metrics"
	"signal-feed/internal/telemetry"
)

const (
	// MinCapacity is the smallest useful pool: one active handle plus one
	// prefetch slot. Below this no prefetch is possible.
	MinCapacity = 2

	// MaxCapacity caps the pool at the full sliding window (active, next,
	// previous). More decoders than that is wasted resource on typical
	// mobile hardware.
	MaxCapacity = 3

	// DefaultForwardBuffer is how much of the next item preload buffers.
	// Forward navigation dominates, so it gets the larger budget.
	DefaultForwardBuffer = 5 * time.Second

	// DefaultBackwardBuffer is how much of the previous item preload buffers.
	DefaultBackwardBuffer = 3 * time.Second

	// initialBitrateCapKbps caps the first variant selection during preload
	// so prefetch bandwidth stays cheap until the item actually plays.
	initialBitrateCapKbps = 700
)

var (
	// ErrPoolClosed reports use after Close.
	ErrPoolClosed = errors.New("player pool is closed")

	// ErrPoolExhausted reports that no handle is available and none is
	// reclaimable. The caller retries after the next release; the pool
	// never fabricates handles beyond its capacity.
	ErrPoolExhausted = errors.New("player pool exhausted")
)

// Factory constructs the platform player for one pool slot.
type Factory func(id int) Player

// Pool is a fixed-size pool of playback handles with three roles: the
// active handle bound to the visible surface, and up to one handle each
// prefetching the next and previous feed items. Roles always refer to
// distinct handles. Handles live exactly as long as the pool; exhaustion is
// resolved by recycling a prefetch-role handle, never by growing.
//
// All role transitions are serialized by one mutex, so no caller can observe
// a role assigned to two handles. The mutex is never held across network
// I/O; Prepare is fire-and-forget.
type Pool struct {
	sink    EventSink
	log     *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	handles   []*Handle
	available []*Handle
	active    *Handle
	next      *Handle
	previous  *Handle
	closed    bool
}

// NewPool creates capacity handles (clamped to [MinCapacity, MaxCapacity]),
// all Idle and available. sink, log, and m may be nil.
func NewPool(capacity int, factory Factory, sink EventSink, log *slog.Logger, m *metrics.Metrics) *Pool {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Pool{sink: sink, log: log, metrics: m}
	for i := 0; i < capacity; i++ {
		h := newHandle(i+1, factory(i+1), sink, log, m)
		p.handles = append(p.handles, h)
		p.available = append(p.available, h)
	}
	p.setAvailableGauge()
	return p
}

// Capacity returns the number of handles the pool constructed.
func (p *Pool) Capacity() int { return len(p.handles) }

// AvailableCount returns the size of the available set. Used for the
// metrics gauge refresh.
func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// Acquire leases a handle and makes it the active role. Preference order:
// an available (Idle/Ready) handle, then the least-recently-used
// non-active role handle (recycled, provided it is not bound to a visible
// surface). With nothing reclaimable the call fails with ErrPoolExhausted
// and the caller retries after the in-flight role resolves.
func (p *Pool) Acquire() (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	h := p.takeAvailableLocked()
	if h == nil {
		h = p.reclaimLocked()
	}
	if h == nil {
		p.mu.Unlock()
		p.log.Warn("acquire failed, pool exhausted")
		if p.metrics != nil {
			p.metrics.IncPoolExhaustions()
		}
		return nil, ErrPoolExhausted
	}

	p.active = h
	p.setAvailableGauge()
	p.mu.Unlock()

	h.touch()
	if p.metrics != nil {
		p.metrics.IncPoolAcquisitions()
	}
	p.log.Debug("handle acquired", slog.Int("handle", h.ID()))
	return h, nil
}

// Release stops playback, detaches any surface, drops any role the handle
// holds, and returns it to the available set. Idempotent: releasing an
// already-available handle is a no-op.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}

	p.mu.Lock()
	if p.closed || p.inAvailableLocked(h) {
		p.mu.Unlock()
		return
	}
	p.clearRolesLocked(h)
	p.available = append(p.available, h)
	p.setAvailableGauge()
	p.mu.Unlock()

	h.cleanup()
	p.log.Debug("handle released", slog.Int("handle", h.ID()))
}

// PreloadNext prepares ref on the next-role handle with the forward buffer
// budget, reusing the current next handle, taking an available one, or
// recycling the previous-role handle (previous is always the first role
// dropped under pressure).
func (p *Pool) PreloadNext(ref MediaRef) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	h := p.next
	if h == nil {
		h = p.takeAvailableLocked()
	}
	if h == nil && p.previous != nil && !p.previous.Attached() {
		h = p.previous
		p.previous = nil
		h.cleanup()
		if p.metrics != nil {
			p.metrics.IncPoolRecycles()
		}
	}
	if h == nil {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.IncPoolExhaustions()
		}
		return ErrPoolExhausted
	}
	p.next = h
	p.setAvailableGauge()
	p.mu.Unlock()

	h.Prepare(ref, PrepareOptions{
		BufferAhead:    DefaultForwardBuffer,
		BitrateCapKbps: initialBitrateCapKbps,
	})
	p.emit(telemetry.PreloadStarted(ref.MediaURL))
	p.log.Debug("preload next", slog.Int("handle", h.ID()), slog.String("video_id", ref.VideoID))
	return nil
}

// PreloadPrevious prepares ref on the previous-role handle with the smaller
// backward buffer budget. It only reuses the previous handle or takes an
// available one; it never steals the active or next role, so with a
// capacity-2 pool under load it fails first.
func (p *Pool) PreloadPrevious(ref MediaRef) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	h := p.previous
	if h == nil {
		h = p.takeAvailableLocked()
	}
	if h == nil {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.IncPoolExhaustions()
		}
		return ErrPoolExhausted
	}
	p.previous = h
	p.setAvailableGauge()
	p.mu.Unlock()

	h.Prepare(ref, PrepareOptions{
		BufferAhead:    DefaultBackwardBuffer,
		BitrateCapKbps: initialBitrateCapKbps,
	})
	p.emit(telemetry.PreloadStarted(ref.MediaURL))
	p.log.Debug("preload previous", slog.Int("handle", h.ID()), slog.String("video_id", ref.VideoID))
	return nil
}

// PromoteNext rotates roles on a forward page transition: the active handle
// is cleaned up and becomes previous (displacing any existing previous back
// to the available set), and the pre-staged next handle becomes active.
// Returns false if nothing was pre-staged; the caller falls back to Acquire.
func (p *Pool) PromoteNext() (*Handle, bool) {
	p.mu.Lock()
	if p.closed || p.next == nil {
		p.mu.Unlock()
		return nil, false
	}

	displaced := p.previous
	old := p.active
	p.previous = old
	p.active = p.next
	p.next = nil
	promoted := p.active
	p.returnDisplacedLocked(displaced)
	p.mu.Unlock()

	if displaced != nil {
		displaced.cleanup()
	}
	if old != nil {
		old.cleanup()
	}
	promoted.touch()
	p.log.Debug("promoted next", slog.Int("handle", promoted.ID()))
	return promoted, true
}

// PromotePrevious rotates roles on a backward page transition, mirror of
// PromoteNext: active becomes next, previous becomes active.
func (p *Pool) PromotePrevious() (*Handle, bool) {
	p.mu.Lock()
	if p.closed || p.previous == nil {
		p.mu.Unlock()
		return nil, false
	}

	displaced := p.next
	old := p.active
	p.next = old
	p.active = p.previous
	p.previous = nil
	promoted := p.active
	p.returnDisplacedLocked(displaced)
	p.mu.Unlock()

	if displaced != nil {
		displaced.cleanup()
	}
	if old != nil {
		old.cleanup()
	}
	promoted.touch()
	p.log.Debug("promoted previous", slog.Int("handle", promoted.ID()))
	return promoted, true
}

// Active returns the handle holding the active role, if any.
func (p *Pool) Active() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// NextReady reports whether a next-role handle is staged.
func (p *Pool) NextReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next != nil
}

// PreviousReady reports whether a previous-role handle is staged.
func (p *Pool) PreviousReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.previous != nil
}

// PauseAll pauses every handle, e.g. when the feed leaves the foreground.
func (p *Pool) PauseAll() {
	p.mu.Lock()
	handles := make([]*Handle, len(p.handles))
	copy(handles, p.handles)
	p.mu.Unlock()

	for _, h := range handles {
		h.Pause()
	}
}

// Close tears the pool down, disposing every handle. The only point in a
// session where handles are destroyed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	handles := make([]*Handle, len(p.handles))
	copy(handles, p.handles)
	p.available = nil
	p.active, p.next, p.previous = nil, nil, nil
	p.mu.Unlock()

	for _, h := range handles {
		h.dispose()
	}
	p.log.Info("player pool closed", slog.Int("capacity", len(handles)))
}

// takeAvailableLocked pops the first available handle, preferring Idle/Ready
// states. Caller must hold p.mu.
func (p *Pool) takeAvailableLocked() *Handle {
	for i, h := range p.available {
		s := h.State()
		if s == StateIdle || s == StateReady {
			p.available = append(p.available[:i], p.available[i+1:]...)
			return h
		}
	}
	if len(p.available) == 0 {
		return nil
	}
	h := p.available[0]
	p.available = p.available[1:]
	return h
}

// reclaimLocked recycles the least-recently-used prefetch-role handle. The
// active handle and anything bound to a visible surface are never
// candidates; the recycle bumps the handle's prepare token (via cleanup) so
// an in-flight prepare cannot deliver into the new binding. Caller must
// hold p.mu.
func (p *Pool) reclaimLocked() *Handle {
	var candidate *Handle
	for _, h := range []*Handle{p.previous, p.next} {
		if h == nil || h == p.active || h.Attached() {
			continue
		}
		if candidate == nil || h.touchedAt().Before(candidate.touchedAt()) {
			candidate = h
		}
	}
	if candidate == nil {
		return nil
	}

	if candidate == p.previous {
		p.previous = nil
	}
	if candidate == p.next {
		p.next = nil
	}
	candidate.cleanup()
	if p.metrics != nil {
		p.metrics.IncPoolRecycles()
	}
	p.log.Debug("handle recycled", slog.Int("handle", candidate.ID()))
	return candidate
}

// clearRolesLocked removes h from any role it holds. Caller must hold p.mu.
func (p *Pool) clearRolesLocked(h *Handle) {
	if p.active == h {
		p.active = nil
	}
	if p.next == h {
		p.next = nil
	}
	if p.previous == h {
		p.previous = nil
	}
}

// inAvailableLocked reports membership in the available set. Caller must
// hold p.mu.
func (p *Pool) inAvailableLocked(h *Handle) bool {
	for _, a := range p.available {
		if a == h {
			return true
		}
	}
	return false
}

func (p *Pool) setAvailableGauge() {
	if p.metrics != nil {
		p.metrics.SetPoolAvailable(len(p.available))
	}
}

// returnDisplacedLocked puts a handle displaced from a role back into the
// available set and refreshes the gauge. Caller must hold p.mu.
func (p *Pool) returnDisplacedLocked(displaced *Handle) {
	if displaced != nil {
		p.available = append(p.available, displaced)
	}
	p.setAvailableGauge()
}

func (p *Pool) emit(e telemetry.Event) {
	if p.sink != nil {
		p.sink.Enqueue(e)
	}
}
