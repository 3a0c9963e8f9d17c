package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riveraj33/kanvas-ios/internal/capture"
	"github.com/riveraj33/kanvas-ios/internal/control"
	"github.com/riveraj33/kanvas-ios/internal/export"
	"github.com/riveraj33/kanvas-ios/internal/platform/config"
	"github.com/riveraj33/kanvas-ios/internal/platform/logger"
	"github.com/riveraj33/kanvas-ios/internal/platform/metrics"
	"github.com/riveraj33/kanvas-ios/internal/recorder"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	outputDir := config.GetEnv("OUTPUT_DIR", "./recordings")
	segmentDir := config.GetEnv("SEGMENT_DIR", "./segments")
	exportDir := config.GetEnv("EXPORT_DIR", outputDir)
	captureSource := config.GetEnv("CAPTURE_SOURCE", "synthetic")

	settings := recorder.Settings{
		OutputDir: outputDir,
		Size: recorder.Size{
			Width:  config.GetEnvInt("OUTPUT_WIDTH", 720),
			Height: config.GetEnvInt("OUTPUT_HEIGHT", 1280),
		},
		FrameRate:         config.GetEnvInt("FRAME_RATE", 30),
		AudioSampleRate:   config.GetEnvInt("AUDIO_SAMPLE_RATE", 44100),
		StitchMode:        config.GetEnvBool("STITCH_MODE", false),
		ClipPixelBuffer:   config.GetEnvBool("CLIP_PIXEL_BUFFER", false),
		GIFPixelBuffer:    config.GetEnvBool("GIF_PIXEL_BUFFER", false),
		ExportStillAsClip: config.GetEnvBool("EXPORT_STILL_AS_CLIP", false),
		GIFShort:          config.GetEnvDuration("GIF_SHORT", recorder.DefaultGIFShort),
		GIFLong:           config.GetEnvDuration("GIF_LONG", recorder.DefaultGIFLong),
	}

	log := logger.New(logLevel, logFormat)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		log.Error("create output dir failed", "error", err)
		os.Exit(1)
	}

	store, err := recorder.NewSegmentStore(segmentDir, log)
	if err != nil {
		log.Error("segment store setup failed", "error", err)
		os.Exit(1)
	}

	ff := export.New(export.Config{
		Binary:      config.GetEnv("FFMPEG_BIN", "ffmpeg"),
		OutputDir:   exportDir,
		FrameRate:   settings.FrameRate,
		StillAsClip: settings.ExportStillAsClip,
	}, log)
	var exporter recorder.Exporter
	if err := ff.CheckAvailable(); err != nil {
		log.Warn("ffmpeg not available, export disabled", "error", err)
	} else {
		exporter = ff
	}

	met := metrics.New()
	coord := recorder.NewCoordinator(settings, store, nil, exporter, log, met)

	hub := control.NewHub(log)
	coord.SetEventSink(hub)

	var stopCapture func()
	switch captureSource {
	case "synthetic":
		syn := capture.NewSynthetic(coord, settings.Size, settings.FrameRate, log)
		coord.SetStillCapturer(syn)
		if err := syn.Start(context.Background()); err != nil {
			log.Error("synthetic source start failed", "error", err)
			os.Exit(1)
		}
		stopCapture = syn.Stop
	case "rtmp":
		ingest := capture.NewRTMPServer(
			config.GetEnv("RTMP_ADDR", ":1935"),
			config.GetEnv("RTMP_STREAM_KEY", ""),
			coord, log)
		if err := ingest.Start(); err != nil {
			log.Error("rtmp ingest start failed", "error", err)
			os.Exit(1)
		}
		stopCapture = func() { _ = ingest.Close() }
	case "none":
		stopCapture = func() {}
	default:
		log.Error("unknown capture source", "capture_source", captureSource)
		os.Exit(1)
	}

	h := control.NewHandler(coord, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetSegmentsStored(store.Len())
			met.SetRecordingActive(coord.IsRecording())
		}).ServeHTTP(w, r)
	})
	r.Get("/events", hub.ServeHTTP)
	r.Mount("/", h.Routes())

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("recorder daemon starting",
		"port", port,
		"capture_source", captureSource,
		"output_dir", outputDir,
		"width", settings.Size.Width,
		"height", settings.Size.Height,
		"stitch_mode", settings.StitchMode,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping capture")

	stopCapture()
	coord.Interrupt()
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
