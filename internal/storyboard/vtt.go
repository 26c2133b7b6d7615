package storyboard

import (
	"image"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Cue maps one half-open time interval [Start, End) to a rectangular region
// of a sprite sheet. Many cues usually share one sheet.
type Cue struct {
	Start    float64 // seconds
	End      float64 // seconds, exclusive
	SheetURL string
	Region   image.Rectangle
}

// ParseStoryboard parses a WebVTT-style storyboard index: timing lines
// ("00:00:02.000 --> 00:00:04.000") each followed by a sheet reference of the
// form "sprites_0001.jpg#xywh=x,y,w,h". Parsing is tolerant: the WEBVTT
// header, blank lines, and malformed cues are skipped individually rather
// than failing the document. Relative sheet references are resolved against
// docURL (the index document's own URL). The result is sorted by start time
// regardless of input order; an unreadable document yields an empty slice.
func ParseStoryboard(content string, docURL *url.URL) []Cue {
	lines := strings.Split(content, "\n")
	cues := make([]Cue, 0, len(lines)/3)

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.Contains(line, "-->") {
			continue
		}

		parts := strings.SplitN(line, "-->", 2)
		start, okStart := parseTimestamp(strings.TrimSpace(parts[0]))
		end, okEnd := parseTimestamp(strings.TrimSpace(parts[1]))
		if !okStart || !okEnd {
			continue
		}

		// The reference is on the next non-blank line.
		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j >= len(lines) {
			break
		}
		if cue, ok := parseReference(strings.TrimSpace(lines[j]), start, end, docURL); ok {
			cues = append(cues, cue)
		}
		i = j
	}

	// Defensive: do not assume the source emits cues in order.
	sort.Slice(cues, func(a, b int) bool { return cues[a].Start < cues[b].Start })
	return cues
}

// parseTimestamp parses "[HH:]MM:SS.mmm" into seconds.
func parseTimestamp(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}

// parseReference parses "sheet.jpg#xywh=x,y,w,h". A wrong field count or a
// non-numeric coordinate drops this cue only.
func parseReference(line string, start, end float64, docURL *url.URL) (Cue, bool) {
	parts := strings.SplitN(line, "#xywh=", 2)
	if len(parts) != 2 {
		return Cue{}, false
	}

	coords := strings.Split(parts[1], ",")
	if len(coords) != 4 {
		return Cue{}, false
	}
	vals := make([]int, 4)
	for i, c := range coords {
		v, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil || v < 0 {
			return Cue{}, false
		}
		vals[i] = v
	}

	sheet := parts[0]
	if docURL != nil {
		ref, err := url.Parse(sheet)
		if err != nil {
			return Cue{}, false
		}
		sheet = docURL.ResolveReference(ref).String()
	}

	return Cue{
		Start:    start,
		End:      end,
		SheetURL: sheet,
		Region:   image.Rect(vals[0], vals[1], vals[0]+vals[2], vals[1]+vals[3]),
	}, true
}

// FindCue returns the cue whose [Start, End) interval contains at, along with
// its index. The interval is half-open, so a boundary timestamp belongs to
// the following cue. A timestamp at or past the last cue's end clamps to the
// last cue; a timestamp before the first cue, or an empty index, finds
// nothing. cues must be sorted by Start (ParseStoryboard guarantees this).
func FindCue(cues []Cue, at float64) (Cue, int, bool) {
	if len(cues) == 0 {
		return Cue{}, 0, false
	}

	idx := sort.Search(len(cues), func(i int) bool { return cues[i].End > at })
	if idx == len(cues) {
		// Past the end of the index: clamp to the final cue.
		return cues[len(cues)-1], len(cues) - 1, true
	}
	if at < cues[idx].Start {
		return Cue{}, 0, false
	}
	return cues[idx], idx, true
}
