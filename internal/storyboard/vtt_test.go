package storyboard

import (
	"image"
	"net/url"
	"testing"
)

const sampleVTT = `WEBVTT

00:00:00.000 --> 00:00:02.000
sprite_0001.jpg#xywh=0,0,160,90

00:00:02.000 --> 00:00:04.000
sprite_0001.jpg#xywh=160,0,160,90
`

func TestParseStoryboard_basic(t *testing.T) {
	cues := ParseStoryboard(sampleVTT, nil)
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Start != 0 || cues[0].End != 2 {
		t.Errorf("cue 0 interval = [%v,%v), want [0,2)", cues[0].Start, cues[0].End)
	}
	if cues[1].Region != image.Rect(160, 0, 320, 90) {
		t.Errorf("cue 1 region = %v, want (160,0)-(320,90)", cues[1].Region)
	}
}

func TestParseStoryboard_drops_malformed_cue_only(t *testing.T) {
	// Second cue has only 3 coordinate values; it must be dropped without
	// taking the rest of the document with it.
	doc := `WEBVTT

00:00:00.000 --> 00:00:02.000
sprite_0001.jpg#xywh=0,0,160,90

00:00:02.000 --> 00:00:04.000
sprite_0001.jpg#xywh=160,0,160
`
	cues := ParseStoryboard(doc, nil)
	if len(cues) != 1 {
		t.Fatalf("expected exactly 1 cue (malformed dropped), got %d", len(cues))
	}
	if cues[0].Start != 0 {
		t.Errorf("surviving cue start = %v, want 0", cues[0].Start)
	}
}

func TestParseStoryboard_tolerates_garbage(t *testing.T) {
	cases := map[string]string{
		"empty document":      "",
		"header only":         "WEBVTT\n",
		"non numeric coords":  "00:00:00.000 --> 00:00:02.000\ns.jpg#xywh=a,b,c,d\n",
		"missing xywh":        "00:00:00.000 --> 00:00:02.000\ns.jpg\n",
		"bad timestamps":      "zz:00:00.000 --> 00:00:02.000\ns.jpg#xywh=0,0,1,1\n",
		"timing without ref":  "00:00:00.000 --> 00:00:02.000\n",
		"not vtt at all":      "<html>not found</html>",
	}
	for name, doc := range cases {
		if cues := ParseStoryboard(doc, nil); len(cues) != 0 {
			t.Errorf("%s: expected 0 cues, got %d", name, len(cues))
		}
	}
}

func TestParseStoryboard_sorts_out_of_order_input(t *testing.T) {
	doc := `WEBVTT

00:00:04.000 --> 00:00:06.000
s.jpg#xywh=0,90,160,90

00:00:00.000 --> 00:00:02.000
s.jpg#xywh=0,0,160,90

00:00:02.000 --> 00:00:04.000
s.jpg#xywh=160,0,160,90
`
	cues := ParseStoryboard(doc, nil)
	if len(cues) != 3 {
		t.Fatalf("expected 3 cues, got %d", len(cues))
	}
	for i := 1; i < len(cues); i++ {
		if cues[i].Start < cues[i-1].Start {
			t.Fatalf("cues not sorted: %v before %v", cues[i-1].Start, cues[i].Start)
		}
	}
}

func TestParseStoryboard_resolves_relative_refs(t *testing.T) {
	docURL, _ := url.Parse("https://cdn.example.com/a1/storyboard/board.vtt")
	cues := ParseStoryboard(sampleVTT, docURL)
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	want := "https://cdn.example.com/a1/storyboard/sprite_0001.jpg"
	if cues[0].SheetURL != want {
		t.Errorf("sheet url = %q, want %q", cues[0].SheetURL, want)
	}

	// Absolute references pass through untouched.
	abs := "00:00:00.000 --> 00:00:02.000\nhttps://other.example.com/s.jpg#xywh=0,0,1,1\n"
	cues = ParseStoryboard(abs, docURL)
	if len(cues) != 1 || cues[0].SheetURL != "https://other.example.com/s.jpg" {
		t.Errorf("absolute ref mangled: %+v", cues)
	}
}

func TestParseTimestamp_hours_optional(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"00:00:02.000", 2, true},
		{"01:02:03.500", 3723.5, true},
		{"02:03.500", 123.5, true},
		{"90:00.000", 5400, true},
		{"5", 0, false},
		{"a:b", 0, false},
		{"1:2:3:4", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseTimestamp(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("parseTimestamp(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFindCue_half_open_interval(t *testing.T) {
	cues := ParseStoryboard(sampleVTT, nil)

	// Exactly t=2.0 belongs to the second cue, not the first.
	cue, idx, ok := FindCue(cues, 2.0)
	if !ok || idx != 1 {
		t.Fatalf("FindCue(2.0) = (%+v, %d, %v), want cue 1", cue, idx, ok)
	}

	cue, idx, ok = FindCue(cues, 1.999)
	if !ok || idx != 0 {
		t.Fatalf("FindCue(1.999) = (%+v, %d, %v), want cue 0", cue, idx, ok)
	}
}

func TestFindCue_clamps_past_end(t *testing.T) {
	cues := ParseStoryboard(sampleVTT, nil)

	cue, idx, ok := FindCue(cues, 100)
	if !ok || idx != len(cues)-1 {
		t.Fatalf("FindCue(100) = (%+v, %d, %v), want final cue", cue, idx, ok)
	}
}

func TestFindCue_before_first_and_empty(t *testing.T) {
	doc := "00:00:05.000 --> 00:00:07.000\ns.jpg#xywh=0,0,1,1\n"
	cues := ParseStoryboard(doc, nil)

	if _, _, ok := FindCue(cues, 1.0); ok {
		t.Error("timestamp before the first cue should find nothing")
	}
	if _, _, ok := FindCue(nil, 1.0); ok {
		t.Error("empty index should find nothing")
	}
}
