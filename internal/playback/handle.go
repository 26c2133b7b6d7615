package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signal-feed/internal/platform/metrics"
	"signal-feed/internal/telemetry"
)

// EventSink receives telemetry from handles and the pool. *telemetry.Bus
// satisfies it; tests substitute a recorder. A nil sink is allowed.
type EventSink interface {
	Enqueue(telemetry.Event)
}

// Handle is one pooled decoder/player instance. The pool owns the slot for
// its entire life; between Acquire and Release a caller holds a lease, never
// ownership. Handles are recycled (re-prepared), not destroyed, until the
// pool itself is torn down.
//
// Every prepare carries a token. Recycling or releasing a handle bumps the
// token, so a readiness callback from a superseded prepare is discarded
// instead of corrupting the handle's next binding.
type Handle struct {
	id      int
	player  Player
	sink    EventSink
	log     *slog.Logger
	metrics *metrics.Metrics

	createdAt time.Time

	mu           sync.Mutex
	state        State
	ref          MediaRef
	prepareToken uint64
	prepareStart time.Time
	surface      Surface
	lastTouched  time.Time
	viewStart    time.Time
	wasPlaying   bool // playing when a scrub gesture began
}

func newHandle(id int, player Player, sink EventSink, log *slog.Logger, m *metrics.Metrics) *Handle {
	now := time.Now()
	return &Handle{
		id:          id,
		player:      player,
		sink:        sink,
		log:         log,
		metrics:     m,
		createdAt:   now,
		state:       StateIdle,
		lastTouched: now,
	}
}

// ID returns the handle's identity within its pool.
func (h *Handle) ID() int { return h.id }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Ref returns the media currently bound to the handle.
func (h *Handle) Ref() MediaRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ref
}

// Prepare binds ref and starts preparation. Fire-and-forget: readiness (or
// failure) lands asynchronously as a Ready or Error state transition. A
// prepare issued while another is in flight supersedes it.
func (h *Handle) Prepare(ref MediaRef, opts PrepareOptions) {
	h.mu.Lock()
	h.prepareToken++
	token := h.prepareToken
	h.state = StatePreparing
	h.ref = ref
	h.prepareStart = time.Now()
	h.lastTouched = h.prepareStart
	h.mu.Unlock()

	h.player.Prepare(ref.MediaURL, opts, func(err error) {
		h.finishPrepare(token, err)
	})
}

func (h *Handle) finishPrepare(token uint64, err error) {
	h.mu.Lock()
	if token != h.prepareToken {
		h.mu.Unlock()
		h.log.Debug("stale prepare callback discarded",
			slog.Int("handle", h.id),
			slog.Uint64("token", token))
		return
	}

	if err != nil {
		h.state = StateError
		videoID := h.ref.VideoID
		h.mu.Unlock()

		h.log.Warn("prepare failed",
			slog.Int("handle", h.id),
			slog.String("video_id", videoID),
			slog.String("error", err.Error()))
		if h.metrics != nil {
			h.metrics.IncPoolPrepareFailures()
		}
		h.emit(telemetry.PlaybackError(videoID, fmt.Sprintf("E_PREPARE_%s", err)))
		return
	}

	h.state = StateReady
	elapsed := int(time.Since(h.prepareStart).Milliseconds())
	videoID := h.ref.VideoID
	h.mu.Unlock()

	h.log.Debug("handle ready", slog.Int("handle", h.id), slog.String("video_id", videoID), slog.Int("ms", elapsed))
	h.emit(telemetry.Prepared(videoID, elapsed))
	h.emit(telemetry.TimeToFirstFrame(elapsed))
}

// Play starts (or resumes) playback. The first play of a binding marks the
// start of the view for dwell accounting.
func (h *Handle) Play() {
	h.mu.Lock()
	if h.state == StateError || h.state == StateDisposed {
		h.mu.Unlock()
		return
	}
	first := h.viewStart.IsZero()
	if first {
		h.viewStart = time.Now()
	}
	h.state = StatePlaying
	h.lastTouched = time.Now()
	videoID := h.ref.VideoID
	h.mu.Unlock()

	if first {
		h.emit(telemetry.ViewStart(videoID))
	}
	h.player.Play()
}

// Pause pauses playback.
func (h *Handle) Pause() {
	h.mu.Lock()
	if h.state == StatePlaying {
		h.state = StatePaused
	}
	h.mu.Unlock()
	h.player.Pause()
}

// TogglePlayPause flips between playing and paused and reports the tap.
func (h *Handle) TogglePlayPause() {
	h.mu.Lock()
	playing := h.state == StatePlaying
	h.mu.Unlock()

	if playing {
		h.Pause()
	} else {
		h.Play()
	}
	h.emit(telemetry.TapPlayPause(!playing))
}

// Seek moves the playhead. done may be nil.
func (h *Handle) Seek(pos time.Duration, done func(finished bool)) {
	if done == nil {
		done = func(bool) {}
	}
	h.player.Seek(pos, done)
}

// StartScrub pauses playback for the duration of a scrub gesture, remembering
// whether to resume on commit.
func (h *Handle) StartScrub() {
	h.mu.Lock()
	h.wasPlaying = h.state == StatePlaying
	h.mu.Unlock()

	h.Pause()
	h.emit(telemetry.PreviewScrubStart())
}

// EndScrub commits a scrub gesture: seeks to the committed position and
// resumes playback if the gesture interrupted it.
func (h *Handle) EndScrub(pos time.Duration) {
	h.emit(telemetry.PreviewScrubCommit(pos.Seconds()))

	h.mu.Lock()
	resume := h.wasPlaying
	h.wasPlaying = false
	h.mu.Unlock()

	h.player.Seek(pos, func(finished bool) {
		if finished && resume {
			h.Play()
		}
	})
}

// AttachSurface binds the handle's output to a rendering surface.
func (h *Handle) AttachSurface(s Surface) {
	h.mu.Lock()
	h.surface = s
	h.mu.Unlock()
	h.player.AttachSurface(s)
}

// DetachSurface unbinds any surface.
func (h *Handle) DetachSurface() {
	h.mu.Lock()
	h.surface = nil
	h.mu.Unlock()
	h.player.DetachSurface()
}

// Attached reports whether a surface is currently bound.
func (h *Handle) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.surface != nil
}

// Position returns the current playhead position.
func (h *Handle) Position() time.Duration { return h.player.Position() }

// Duration returns the media duration, if known yet.
func (h *Handle) Duration() (time.Duration, bool) { return h.player.Duration() }

// PercentComplete returns how much of the media has played, 0-100.
func (h *Handle) PercentComplete() int {
	dur, ok := h.Duration()
	if !ok || dur <= 0 {
		return 0
	}
	pct := int(h.Position() * 100 / dur)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// cleanup reports view_end if the binding was ever played, cancels any
// in-flight prepare by bumping the token, detaches the surface, and returns
// the handle to Idle. Called by the pool on release, recycle, and promotion.
func (h *Handle) cleanup() {
	h.mu.Lock()
	if h.state == StateDisposed {
		h.mu.Unlock()
		return
	}

	var endEvent *telemetry.Event
	if !h.viewStart.IsZero() {
		dwell := int(time.Since(h.viewStart).Milliseconds())
		e := telemetry.ViewEnd(h.ref.VideoID, dwell, h.PercentComplete())
		endEvent = &e
	}

	h.prepareToken++ // cancel any pending readiness callback
	h.state = StateIdle
	h.ref = MediaRef{}
	h.viewStart = time.Time{}
	h.wasPlaying = false
	h.surface = nil
	h.lastTouched = time.Now()
	h.mu.Unlock()

	h.player.Pause()
	h.player.DetachSurface()
	if endEvent != nil {
		h.emit(*endEvent)
	}
}

// dispose permanently retires the handle. Only pool teardown does this.
func (h *Handle) dispose() {
	h.cleanup()
	h.mu.Lock()
	h.prepareToken++
	h.state = StateDisposed
	h.mu.Unlock()
	h.player.Dispose()
}

func (h *Handle) touch() {
	h.mu.Lock()
	h.lastTouched = time.Now()
	h.mu.Unlock()
}

func (h *Handle) touchedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastTouched
}

func (h *Handle) emit(e telemetry.Event) {
	if h.sink != nil {
		h.sink.Enqueue(e)
	}
}
