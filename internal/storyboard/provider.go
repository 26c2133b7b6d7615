package storyboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"signal-feed/internal/platform/metrics"
)

const (
	// DefaultSpriteCapacity bounds the decoded sheet cache. Eviction is
	// strict least-recently-accessed; a hit or a completed fetch-and-insert
	// both count as an access.
	DefaultSpriteCapacity = 24

	// DefaultIndexCapacity bounds the parsed cue-index cache. Indexes are
	// tiny compared to sheets, but a long session still should not retain
	// one per video forever.
	DefaultIndexCapacity = 8

	prefetchTimeout = 10 * time.Second
)

// ErrNoThumbnail is the normal "no preview available" outcome: empty index,
// timestamp before the first cue, or a failed fetch/decode on the primary
// cue. It is not an error condition callers should surface.
var ErrNoThumbnail = errors.New("no thumbnail available")

// ProviderConfig configures a Provider. Zero values select defaults.
type ProviderConfig struct {
	SpriteCapacity int
	IndexCapacity  int
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Provider serves cropped scrub-preview frames from grid-packed sprite
// sheets. It owns two bounded LRU caches (decoded sheets by URL, parsed cue
// indexes by index URL) and prefetches the neighboring cues' sheets on every
// lookup. The caches are explicitly owned here, not ambient globals, and are
// torn down with the provider.
//
// The provider applies no throttling; during a scrub drag the caller is
// expected to hold requests to roughly 8 per second. Stale results are the
// caller's problem too: a frame delivered after the UI moved on must be
// discarded by comparing the caller's own generation token, because the
// provider has no notion of UI focus.
type Provider struct {
	client  *retryablehttp.Client
	sprites *lru.Cache[string, image.Image]
	indexes *lru.Cache[string, []Cue]
	group   singleflight.Group
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewProvider builds a Provider with bounded caches.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.SpriteCapacity <= 0 {
		cfg.SpriteCapacity = DefaultSpriteCapacity
	}
	if cfg.IndexCapacity <= 0 {
		cfg.IndexCapacity = DefaultIndexCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Provider{
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}

	sprites, err := lru.NewWithEvict[string, image.Image](cfg.SpriteCapacity, func(string, image.Image) {
		if p.metrics != nil {
			p.metrics.IncCacheEvictions()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("sprite cache: %w", err)
	}
	indexes, err := lru.New[string, []Cue](cfg.IndexCapacity)
	if err != nil {
		return nil, fmt.Errorf("index cache: %w", err)
	}
	p.sprites = sprites
	p.indexes = indexes

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil
	if cfg.HTTPClient != nil {
		rc.HTTPClient = cfg.HTTPClient
	}
	p.client = rc

	return p, nil
}

// Thumbnail returns the preview frame for the given timestamp: it resolves
// the cue index (fetching and parsing it on first use), finds the covering
// cue, crops the cached-or-fetched sheet to the cue's region, and kicks off
// neighbor prefetch. Any failure on the primary path reports ErrNoThumbnail;
// the UI simply shows no preview.
func (p *Provider) Thumbnail(ctx context.Context, indexURL string, at float64) (image.Image, error) {
	cues, err := p.cues(ctx, indexURL)
	if err != nil {
		p.log.Debug("storyboard index unavailable",
			slog.String("index", indexURL),
			slog.String("error", err.Error()))
		return nil, ErrNoThumbnail
	}

	cue, idx, ok := FindCue(cues, at)
	if !ok {
		return nil, ErrNoThumbnail
	}

	sheet, err := p.sheet(ctx, cue.SheetURL)
	if err != nil {
		p.log.Debug("sprite sheet unavailable",
			slog.String("sheet", cue.SheetURL),
			slog.String("error", err.Error()))
		return nil, ErrNoThumbnail
	}

	// Warm the neighbors on every lookup; failures there are dropped and a
	// fetch that outlives the gesture still usefully populates the cache.
	go p.prefetchNeighbors(cues, idx)

	return crop(sheet, cue.Region), nil
}

// CachedSheets reports how many decoded sheets are resident.
func (p *Provider) CachedSheets() int {
	return p.sprites.Len()
}

// Purge drops both caches. Tied to the feed session's teardown.
func (p *Provider) Purge() {
	p.sprites.Purge()
	p.indexes.Purge()
}

// cues returns the parsed index for indexURL, fetching it once per distinct
// URL. A document that fetches but does not parse resolves to an empty cue
// list (cached, so every lookup against it is a cheap NoThumbnail); a fetch
// failure is not cached and will be retried on the next lookup.
func (p *Provider) cues(ctx context.Context, indexURL string) ([]Cue, error) {
	if cues, ok := p.indexes.Get(indexURL); ok {
		return cues, nil
	}

	v, err, _ := p.group.Do("index:"+indexURL, func() (any, error) {
		if cues, ok := p.indexes.Get(indexURL); ok {
			return cues, nil
		}
		body, err := p.fetch(ctx, indexURL)
		if err != nil {
			return nil, err
		}
		docURL, err := url.Parse(indexURL)
		if err != nil {
			return nil, err
		}
		cues := ParseStoryboard(string(body), docURL)
		if len(cues) == 0 {
			p.log.Warn("storyboard index parsed to zero cues", slog.String("index", indexURL))
		}
		p.indexes.Add(indexURL, cues)
		return cues, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Cue), nil
}

// sheet returns the decoded sprite sheet for sheetURL, consulting the LRU
// first and deduplicating concurrent fetches of the same URL. The lock
// inside the LRU covers only map mutation; fetch and decode run outside it.
func (p *Provider) sheet(ctx context.Context, sheetURL string) (image.Image, error) {
	if img, ok := p.sprites.Get(sheetURL); ok {
		if p.metrics != nil {
			p.metrics.IncCacheHits()
		}
		return img, nil
	}
	if p.metrics != nil {
		p.metrics.IncCacheMisses()
	}

	v, err, _ := p.group.Do("sheet:"+sheetURL, func() (any, error) {
		if img, ok := p.sprites.Get(sheetURL); ok {
			return img, nil
		}
		body, err := p.fetch(ctx, sheetURL)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("decode sheet: %w", err)
		}
		p.sprites.Add(sheetURL, img)
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// prefetchNeighbors warms the sheets of the cues immediately before and
// after idx. Already-cached sheets are skipped without touching recency;
// fetch failures are dropped silently.
func (p *Provider) prefetchNeighbors(cues []Cue, idx int) {
	ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
	defer cancel()

	for _, j := range []int{idx - 1, idx + 1} {
		if j < 0 || j >= len(cues) {
			continue
		}
		sheetURL := cues[j].SheetURL
		if p.sprites.Contains(sheetURL) {
			continue
		}
		if p.metrics != nil {
			p.metrics.IncCachePrefetches()
		}
		if _, err := p.sheet(ctx, sheetURL); err != nil {
			p.log.Debug("neighbor prefetch failed",
				slog.String("sheet", sheetURL),
				slog.String("error", err.Error()))
		}
	}
}

func (p *Provider) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// crop returns the cue's region of a sheet. Decoded JPEG/PNG images expose
// SubImage, which shares pixels; anything else is copied.
func crop(img image.Image, region image.Rectangle) image.Image {
	region = region.Intersect(img.Bounds())

	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(region)
	}

	out := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(out, out.Bounds(), img, region.Min, draw.Src)
	return out
}
