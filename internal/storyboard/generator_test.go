package storyboard

import (
	"image"
	"image/color"
	"strings"
	"testing"
)

func TestBuildStoryboardVTT_round_trips_through_parser(t *testing.T) {
	cfg := GridConfig{Cols: 2, Rows: 2, TileWidth: 160, TileHeight: 90, Interval: 2}
	vtt := BuildStoryboardVTT(6, cfg)

	if !strings.HasPrefix(vtt, "WEBVTT\n") {
		t.Fatal("missing WEBVTT header")
	}

	cues := ParseStoryboard(vtt, nil)
	if len(cues) != 6 {
		t.Fatalf("expected 6 cues, got %d", len(cues))
	}

	// Tiles are row-major: tile 3 of sheet 1 is bottom-right of a 2x2 grid.
	if cues[3].Region != image.Rect(160, 90, 320, 180) {
		t.Errorf("cue 3 region = %v, want (160,90)-(320,180)", cues[3].Region)
	}
	// Tile 4 overflows sheet 1 into sheet 2, top-left.
	if cues[4].SheetURL != "sprites_0002.jpg" {
		t.Errorf("cue 4 sheet = %q, want sprites_0002.jpg", cues[4].SheetURL)
	}
	if cues[4].Region != image.Rect(0, 0, 160, 90) {
		t.Errorf("cue 4 region = %v, want (0,0)-(160,90)", cues[4].Region)
	}
	// Intervals are contiguous and half-open.
	for i := 1; i < len(cues); i++ {
		if cues[i].Start != cues[i-1].End {
			t.Errorf("cue %d start %v != cue %d end %v", i, cues[i].Start, i-1, cues[i-1].End)
		}
	}
}

func TestGridConfig_sheet_count(t *testing.T) {
	cfg := GridConfig{Cols: 10, Rows: 10, TileWidth: 160, TileHeight: 90, Interval: 2}
	tests := []struct{ frames, sheets int }{
		{0, 0}, {1, 1}, {100, 1}, {101, 2}, {250, 3},
	}
	for _, tt := range tests {
		if got := cfg.SheetCount(tt.frames); got != tt.sheets {
			t.Errorf("SheetCount(%d) = %d, want %d", tt.frames, got, tt.sheets)
		}
	}
}

func TestComposeSheet_places_tiles_row_major(t *testing.T) {
	cfg := GridConfig{Cols: 2, Rows: 2, TileWidth: 4, TileHeight: 4, Interval: 2}
	colors := []color.RGBA{
		{R: 255, A: 255}, {G: 255, A: 255}, {B: 255, A: 255},
	}
	tiles := make([]image.Image, len(colors))
	for i, c := range colors {
		tile := image.NewRGBA(image.Rect(0, 0, 4, 4))
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				tile.SetRGBA(x, y, c)
			}
		}
		tiles[i] = tile
	}

	sheet := ComposeSheet(tiles, cfg)
	if sheet.Bounds() != image.Rect(0, 0, 8, 8) {
		t.Fatalf("sheet bounds = %v, want (0,0)-(8,8)", sheet.Bounds())
	}
	if got := sheet.RGBAAt(1, 1); got != colors[0] {
		t.Errorf("tile 0 pixel = %v, want %v", got, colors[0])
	}
	if got := sheet.RGBAAt(5, 1); got != colors[1] {
		t.Errorf("tile 1 pixel = %v, want %v", got, colors[1])
	}
	if got := sheet.RGBAAt(1, 5); got != colors[2] {
		t.Errorf("tile 2 (second row) pixel = %v, want %v", got, colors[2])
	}
}
