package storyboard

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"
)

// GridConfig describes producer-side sprite packing: tiles are arranged
// row-major, Cols x Rows per sheet, each tile covering Interval seconds of
// the source video. Sheet filenames are sequential per batch.
type GridConfig struct {
	Cols       int
	Rows       int
	TileWidth  int
	TileHeight int
	Interval   float64 // seconds per tile
}

// DefaultGrid returns the packing used by the storyboard pipeline:
// 10x10 tiles of 160x90, sampled every 2 seconds.
func DefaultGrid() GridConfig {
	return GridConfig{Cols: 10, Rows: 10, TileWidth: 160, TileHeight: 90, Interval: 2}
}

// TilesPerSheet returns how many tiles one full sheet holds.
func (g GridConfig) TilesPerSheet() int {
	return g.Cols * g.Rows
}

// SheetName returns the filename of the n-th sheet (1-based).
func SheetName(n int) string {
	return fmt.Sprintf("sprites_%04d.jpg", n)
}

// SheetCount returns how many sheets are needed for frameCount tiles.
func (g GridConfig) SheetCount(frameCount int) int {
	per := g.TilesPerSheet()
	if per <= 0 || frameCount <= 0 {
		return 0
	}
	return (frameCount + per - 1) / per
}

// BuildStoryboardVTT emits the WebVTT index for frameCount tiles packed per
// cfg: one cue per tile, row-major within each sheet, sheet names sequential.
func BuildStoryboardVTT(frameCount int, cfg GridConfig) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")

	per := cfg.TilesPerSheet()
	t := 0.0
	for i := 0; i < frameCount; i++ {
		sheet := i/per + 1
		tile := i % per
		x := (tile % cfg.Cols) * cfg.TileWidth
		y := (tile / cfg.Cols) * cfg.TileHeight

		b.WriteString(formatTimestamp(t))
		b.WriteString(" --> ")
		b.WriteString(formatTimestamp(t + cfg.Interval))
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s#xywh=%d,%d,%d,%d\n\n", SheetName(sheet), x, y, cfg.TileWidth, cfg.TileHeight)

		t += cfg.Interval
	}

	return b.String()
}

// ComposeSheet packs up to Cols*Rows tiles row-major into a single sheet
// image. Tiles beyond the grid are ignored; a short batch leaves the
// remainder black.
func ComposeSheet(tiles []image.Image, cfg GridConfig) *image.RGBA {
	rows := cfg.Rows
	if len(tiles) < cfg.TilesPerSheet() {
		rows = (len(tiles) + cfg.Cols - 1) / cfg.Cols
		if rows == 0 {
			rows = 1
		}
	}
	sheet := image.NewRGBA(image.Rect(0, 0, cfg.Cols*cfg.TileWidth, rows*cfg.TileHeight))

	for i, tile := range tiles {
		if i >= cfg.Cols*rows {
			break
		}
		x := (i % cfg.Cols) * cfg.TileWidth
		y := (i / cfg.Cols) * cfg.TileHeight
		dst := image.Rect(x, y, x+cfg.TileWidth, y+cfg.TileHeight)
		draw.Draw(sheet, dst, tile, tile.Bounds().Min, draw.Src)
	}

	return sheet
}

// formatTimestamp renders seconds as "HH:MM:SS.mmm".
func formatTimestamp(sec float64) string {
	total := int(math.Round(sec * 1000))
	h := total / 3600000
	m := (total % 3600000) / 60000
	s := (total % 60000) / 1000
	ms := total % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}
