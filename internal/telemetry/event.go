package telemetry

import "time"

// Event is a single analytics event: a name, a flat map of scalar properties,
// and a capture timestamp in milliseconds since epoch. The timestamp is
// assigned at enqueue time, not at send time, and the event is immutable once
// enqueued. The bus treats names and props opaquely.
type Event struct {
	Name      string         `json:"name"`
	Props     map[string]any `json:"props,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Batch is the outbound wire format: device and session identity, a batch
// timestamp, and the events in enqueue order. Batch identity is ephemeral;
// nothing is persisted.
type Batch struct {
	DeviceID  string  `json:"device_id"`
	SessionID string  `json:"session_id"`
	TS        int64   `json:"ts"`
	Events    []Event `json:"events"`
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Constructors for the event names the feed UI layer emits. These are plain
// helpers; nothing downstream switches on the name.

// ViewStart records the first frame of engagement with a video.
func ViewStart(videoID string) Event {
	return Event{Name: "view_start", Props: map[string]any{"video_id": videoID}}
}

// ViewEnd records how long a video was on screen and how much of it played.
func ViewEnd(videoID string, dwellMs, percentComplete int) Event {
	return Event{Name: "view_end", Props: map[string]any{
		"video_id":         videoID,
		"dwell_ms":         dwellMs,
		"percent_complete": percentComplete,
	}}
}

// TapPlayPause records a play/pause toggle and the resulting state.
func TapPlayPause(playing bool) Event {
	return Event{Name: "tap_play_pause", Props: map[string]any{"playing": playing}}
}

// PreviewScrubStart records the beginning of a scrub gesture.
func PreviewScrubStart() Event {
	return Event{Name: "preview_scrub_start"}
}

// PreviewScrubCommit records the position a scrub gesture committed to.
func PreviewScrubCommit(seconds float64) Event {
	return Event{Name: "preview_scrub_commit", Props: map[string]any{"seconds": int(seconds)}}
}

// TimeToFirstFrame records prepare-to-ready latency.
func TimeToFirstFrame(ms int) Event {
	return Event{Name: "time_to_first_frame", Props: map[string]any{"ms": ms}}
}

// Rebuffer records a stall count and cumulative stall time.
func Rebuffer(count, totalMs int) Event {
	return Event{Name: "rebuffer", Props: map[string]any{"count": count, "total_ms": totalMs}}
}

// SelectedBitrate records the bitrate the player settled on.
func SelectedBitrate(kbps int) Event {
	return Event{Name: "selected_bitrate", Props: map[string]any{"kbps": kbps}}
}

// PlaybackError records a player-surfaced error for a video.
func PlaybackError(videoID, code string) Event {
	return Event{Name: "playback_error", Props: map[string]any{"video_id": videoID, "code": code}}
}

// Prepared records a completed media preparation.
func Prepared(videoID string, ms int) Event {
	return Event{Name: "prepared", Props: map[string]any{"video_id": videoID, "ms": ms}}
}

// PreloadStarted records a next/previous prefetch kicking off.
func PreloadStarted(mediaURL string) Event {
	return Event{Name: "preload_started", Props: map[string]any{"url": mediaURL}}
}
