package playback

import (
	"sync"
	"time"
)

// StubPlayer is a Player for tests and the feedsim harness: no real decoder,
// just state, a configurable prepare latency, and optional per-URL prepare
// failures. Safe for concurrent use.
type StubPlayer struct {
	// PrepareDelay is how long a prepare "takes". Zero completes the done
	// callback synchronously, which keeps tests deterministic.
	PrepareDelay time.Duration

	// FailPrepare, when non-nil, is consulted per media URL; a non-nil
	// return fails that preparation.
	FailPrepare func(mediaURL string) error

	// MediaDuration is reported by Duration once prepared.
	MediaDuration time.Duration

	mu       sync.Mutex
	playing  bool
	prepared bool
	position time.Duration
	surface  Surface
	disposed bool
}

// NewStubPlayer returns a stub with a 30s media duration and instant prepare.
func NewStubPlayer() *StubPlayer {
	return &StubPlayer{MediaDuration: 30 * time.Second}
}

func (s *StubPlayer) Prepare(mediaURL string, _ PrepareOptions, done func(error)) {
	s.mu.Lock()
	s.prepared = false
	s.position = 0
	s.mu.Unlock()

	finish := func() {
		var err error
		if s.FailPrepare != nil {
			err = s.FailPrepare(mediaURL)
		}
		if err == nil {
			s.mu.Lock()
			s.prepared = true
			s.mu.Unlock()
		}
		done(err)
	}

	if s.PrepareDelay <= 0 {
		finish()
		return
	}
	time.AfterFunc(s.PrepareDelay, finish)
}

func (s *StubPlayer) Play() {
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
}

func (s *StubPlayer) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *StubPlayer) Seek(pos time.Duration, done func(finished bool)) {
	s.mu.Lock()
	s.position = pos
	s.mu.Unlock()
	if done != nil {
		done(true)
	}
}

func (s *StubPlayer) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *StubPlayer) Duration() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.prepared {
		return 0, false
	}
	return s.MediaDuration, true
}

func (s *StubPlayer) AttachSurface(sf Surface) {
	s.mu.Lock()
	s.surface = sf
	s.mu.Unlock()
}

func (s *StubPlayer) DetachSurface() {
	s.mu.Lock()
	s.surface = nil
	s.mu.Unlock()
}

func (s *StubPlayer) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.playing = false
	s.mu.Unlock()
}

// Playing reports the stub's playing flag, for assertions.
func (s *StubPlayer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Disposed reports whether Dispose was called, for assertions.
func (s *StubPlayer) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
