package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-feed/internal/collector"
	"signal-feed/internal/platform/config"
	"signal-feed/internal/platform/logger"
	"signal-feed/internal/platform/metrics"
	"signal-feed/internal/playback"
	"signal-feed/internal/storyboard"
	"signal-feed/internal/telemetry"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

// demoSurface stands in for a rendering surface in the simulated session.
type demoSurface string

func (s demoSurface) ID() string { return string(s) }

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	poolSize := config.GetEnvInt("POOL_SIZE", 3)
	spriteCapacity := config.GetEnvInt("SPRITE_CACHE_CAPACITY", storyboard.DefaultSpriteCapacity)
	retention := config.GetEnvInt("COLLECTOR_RETENTION", collector.DefaultRetention)
	debounce := config.GetEnvDuration("TELEMETRY_DEBOUNCE", telemetry.DefaultDebounce)
	maxBatch := config.GetEnvInt("TELEMETRY_MAX_BATCH", telemetry.DefaultMaxBatch)
	idPath := config.GetEnv("DEVICE_ID_PATH", "feedsim.db")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	deviceID, err := telemetry.LoadDeviceID(idPath)
	if err != nil {
		log.Error("load device id", "error", err)
		os.Exit(1)
	}
	sessionID := telemetry.NewSessionID()

	repo := collector.NewInMemoryRepository(retention)
	svc := collector.NewService(repo)
	met := metrics.New()
	h := collector.NewHandler(svc, log, met)

	vtt, sheets, err := buildFixtures()
	if err != nil {
		log.Error("build storyboard fixtures", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetBatchesRetained(repo.RetainedCount()) }).ServeHTTP(w, r)
	})
	r.Route("/v1/events", func(r chi.Router) {
		r.Post("/", h.IngestBatch)
		r.Get("/recent", h.RecentBatches)
	})
	r.Route("/storyboard", func(r chi.Router) {
		r.Get("/board.vtt", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/vtt")
			w.Write([]byte(vtt))
		})
		r.Get("/{sheet}", func(w http.ResponseWriter, r *http.Request) {
			data, ok := sheets[chi.URLParam(r, "sheet")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(data)
		})
	})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	base := "http://127.0.0.1:" + port

	bus := telemetry.NewBus(telemetry.Config{
		Endpoint:  base + "/v1/events",
		DeviceID:  deviceID,
		SessionID: sessionID,
		Debounce:  debounce,
		MaxBatch:  maxBatch,
		Logger:    log,
		Metrics:   met,
	})

	pool := playback.NewPool(poolSize, func(int) playback.Player {
		return playback.NewStubPlayer()
	}, bus, log, met)

	thumbs, err := storyboard.NewProvider(storyboard.ProviderConfig{
		SpriteCapacity: spriteCapacity,
		Logger:         log,
		Metrics:        met,
	})
	if err != nil {
		log.Error("storyboard provider", "error", err)
		os.Exit(1)
	}

	log.Info("feedsim starting",
		"port", port,
		"pool_size", pool.Capacity(),
		"device_id", deviceID,
		"session_id", sessionID,
	)

	go runSession(log, pool, thumbs, bus, base)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining")

	bus.Close()
	pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("feedsim stopped")
}

// runSession drives one simulated scroll through a three-item feed so every
// layer (pool, storyboard provider, telemetry bus, collector) sees traffic.
func runSession(log *slog.Logger, pool *playback.Pool, thumbs *storyboard.Provider, bus *telemetry.Bus, base string) {
	// Give the listener a moment to come up.
	time.Sleep(200 * time.Millisecond)

	refs := []playback.MediaRef{
		{VideoID: "a1", MediaURL: base + "/media/a1.m3u8"},
		{VideoID: "b2", MediaURL: base + "/media/b2.m3u8"},
		{VideoID: "c3", MediaURL: base + "/media/c3.m3u8"},
	}

	active, err := pool.Acquire()
	if err != nil {
		log.Error("session acquire", "error", err)
		return
	}
	active.Prepare(refs[0], playback.PrepareOptions{})
	active.AttachSurface(demoSurface("page-0"))
	active.Play()
	bus.Enqueue(telemetry.SelectedBitrate(700))

	if err := pool.PreloadNext(refs[1]); err != nil {
		log.Warn("preload next", "error", err)
	}

	// Scrub the preview strip before committing a seek.
	active.StartScrub()
	indexURL := base + "/storyboard/board.vtt"
	for _, at := range []float64{1.0, 7.0, 13.0} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := thumbs.Thumbnail(ctx, indexURL, at); err != nil {
			log.Warn("thumbnail", "at", at, "error", err)
		}
		cancel()
	}
	active.EndScrub(13 * time.Second)

	// Swipe forward.
	active.DetachSurface()
	promoted, ok := pool.PromoteNext()
	if !ok {
		log.Warn("nothing staged, acquiring cold")
		return
	}
	promoted.AttachSurface(demoSurface("page-1"))
	promoted.Play()
	if err := pool.PreloadNext(refs[2]); err != nil {
		log.Warn("preload next", "error", err)
	}

	time.Sleep(500 * time.Millisecond)
	bus.Enqueue(telemetry.Rebuffer(1, 350))
	promoted.TogglePlayPause()

	log.Info("simulated session complete",
		"cached_sheets", thumbs.CachedSheets(),
		"pool_available", pool.AvailableCount(),
	)
}

// buildFixtures generates a small storyboard index and its sprite sheets:
// 60 frames on a 5x5 grid, so three sheets with distinct tile colors.
func buildFixtures() (string, map[string][]byte, error) {
	grid := storyboard.GridConfig{
		Cols:       5,
		Rows:       5,
		TileWidth:  160,
		TileHeight: 90,
		Interval:   2,
	}
	const frameCount = 60

	vtt := storyboard.BuildStoryboardVTT(frameCount, grid)

	sheets := make(map[string][]byte)
	perSheet := grid.TilesPerSheet()
	for n := 1; n <= grid.SheetCount(frameCount); n++ {
		remaining := frameCount - (n-1)*perSheet
		if remaining > perSheet {
			remaining = perSheet
		}
		tiles := make([]image.Image, remaining)
		for i := range tiles {
			tiles[i] = tileImage(grid, uint8((n*40+i*8)%256))
		}
		sheet := storyboard.ComposeSheet(tiles, grid)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, sheet, &jpeg.Options{Quality: 70}); err != nil {
			return "", nil, fmt.Errorf("encode sheet %d: %w", n, err)
		}
		sheets[storyboard.SheetName(n)] = buf.Bytes()
	}

	return vtt, sheets, nil
}

func tileImage(grid storyboard.GridConfig, shade uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, grid.TileWidth, grid.TileHeight))
	c := color.RGBA{R: shade, G: 255 - shade, B: 128, A: 255}
	for y := 0; y < grid.TileHeight; y++ {
		for x := 0; x < grid.TileWidth; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
