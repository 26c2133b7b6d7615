package playback

import "time"

// State is the lifecycle of a pooled player handle and the single source of
// truth for it; anything the UI shows (an isPlaying flag, a retry overlay)
// is derived from this, never tracked separately.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateReady
	StatePlaying
	StatePaused
	StateError
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// MediaRef identifies one playable item: the feed item's id and its media
// (HLS manifest) URL. Manifest fetching itself belongs to the feed layer.
type MediaRef struct {
	VideoID  string
	MediaURL string
}

// PrepareOptions tunes a single preparation. BufferAhead bounds how much the
// adapter may buffer beyond the playhead; BitrateCapKbps caps the initial
// variant selection until playback stabilizes (0 means uncapped).
type PrepareOptions struct {
	BufferAhead    time.Duration
	BitrateCapKbps int
}

// Surface is a rendering target owned by the UI layer. The pool only tracks
// attachment; drawing is the platform adapter's concern.
type Surface interface {
	ID() string
}

// Player is the capability set a platform media framework adapter must
// provide. Prepare is fire-and-forget: the adapter performs manifest load
// and decoder init off the calling goroutine and invokes done exactly once.
// All other calls are synchronous and fast; the pool never blocks on
// network I/O through this interface.
type Player interface {
	Prepare(mediaURL string, opts PrepareOptions, done func(error))
	Play()
	Pause()
	Seek(pos time.Duration, done func(finished bool))
	Position() time.Duration
	Duration() (time.Duration, bool)
	AttachSurface(s Surface)
	DetachSurface()
	Dispose()
}
