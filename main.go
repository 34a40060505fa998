package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/usage.report/internal/api"
	"github.com/banshee-data/usage.report/internal/audit"
	"github.com/banshee-data/usage.report/internal/config"
	"github.com/banshee-data/usage.report/internal/frames"
	"github.com/banshee-data/usage.report/internal/metrics"
	"github.com/banshee-data/usage.report/internal/timeutil"
	"github.com/banshee-data/usage.report/internal/vision/associate"
	"github.com/banshee-data/usage.report/internal/vision/detect"
	"github.com/banshee-data/usage.report/internal/vision/material"
	"github.com/banshee-data/usage.report/internal/vision/pipeline"
	"github.com/banshee-data/usage.report/internal/vision/sessions"
)

var (
	listen      = flag.String("listen", envOr("USAGE_LISTEN", ":8080"), "Listen address")
	cameraName  = flag.String("camera-name", envOr("USAGE_CAMERA_NAME", "camera1"), "Camera name used in the audit trail")
	source      = flag.String("source", envOr("USAGE_SOURCE", "0"), "Video source: device index, stream URL, or recording path")
	loop        = flag.Bool("loop", false, "Restart a recording when it ends instead of exiting")
	modelPath   = flag.String("model", envOr("USAGE_MODEL", "models/detector.pb"), "Detection network weights")
	modelConfig = flag.String("model-config", envOr("USAGE_MODEL_CONFIG", "models/detector.pbtxt"), "Detection network config")
	classSpec   = flag.String("classes", envOr("USAGE_CLASSES", "1=phone,2=person"), "Comma-separated classID=label pairs")
	configPath  = flag.String("config", "", "Tuning config JSON (defaults to the embedded defaults)")
	dbPath      = flag.String("db", envOr("USAGE_DB", "usage_audit.db"), "Audit database path")
	logsDir     = flag.String("logs", envOr("USAGE_LOGS", "logs"), "Audit JSONL directory")
	debugMode   = flag.Bool("debug", false, "Enable diag and trace logging streams")
)

// envOr reads a .env-sourced variable with a fallback, so deployments can
// configure the service without flag soup in the unit file.
func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseClasses parses "1=phone,2=person" into a class map.
func parseClasses(spec string) (map[int]string, error) {
	classes := make(map[int]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, label, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed class %q", pair)
		}
		classID, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return nil, fmt.Errorf("malformed class id %q", id)
		}
		classes[classID] = strings.TrimSpace(label)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("no classes configured")
	}
	return classes, nil
}

func main() {
	// .env is optional; flags and real env vars win.
	_ = godotenv.Load()
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var diagWriter, traceWriter io.Writer
	if *debugMode {
		diagWriter = os.Stderr
		traceWriter = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diagWriter, traceWriter)

	var cfg *config.TuningConfig
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		cfg = loaded
	} else {
		loaded, err := config.LoadDefaultConfig()
		if err != nil {
			log.Fatalf("Failed to load default tuning config: %v", err)
		}
		cfg = loaded
	}

	classes, err := parseClasses(*classSpec)
	if err != nil {
		log.Fatalf("Failed to parse -classes: %v", err)
	}

	detector, err := detect.NewDNNDetector(detect.DNNConfig{
		ModelPath:     *modelPath,
		ConfigPath:    *modelConfig,
		Classes:       classes,
		MinConfidence: cfg.GetMinConfidence(),
	})
	if err != nil {
		log.Fatalf("Failed to load detector: %v", err)
	}
	defer detector.Close()

	videoSource, err := frames.Open(*source, *loop)
	if err != nil {
		log.Fatalf("Failed to open video source: %v", err)
	}
	defer videoSource.Close()

	sqliteSink, err := audit.NewSQLiteSink(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open audit database: %v", err)
	}
	defer sqliteSink.Close()

	jsonlSink := audit.NewJSONLSink(*logsDir)
	defer jsonlSink.Close()

	hub := api.NewHub()
	go hub.Run()
	defer hub.Close()

	clock := timeutil.RealClock{}
	trail := audit.NewTrail(*cameraName, clock, jsonlSink, sqliteSink, hub)
	trail.OnWriteError = func(error) {
		metrics.AuditWriteFailures.WithLabelValues(*cameraName).Inc()
	}

	store := sessions.NewStore(sessions.Config{
		GapTolerance:   cfg.GetGapTolerance(),
		AlertThreshold: cfg.GetAlertThreshold(),
	}, trail)

	p, err := pipeline.New(pipeline.Options{
		Camera:   *cameraName,
		Detector: detector,
		Matcher: associate.NewGreedyMatcher(associate.Gates{
			MinIoU:              cfg.GetIoUGate(),
			MaxAreaChange:       cfg.GetAreaChangeGate(),
			MaxCentroidDistance: cfg.GetCentroidDistanceGate(),
		}),
		Store: store,
		Memory: material.NewMemory(material.Thresholds{
			EntropyBits: cfg.GetEntropyThreshold(),
			GlareRatio:  cfg.GetGlareRatioThreshold(),
		}, cfg.GetMemoryEvictionFrames()),
		Analyzer: &material.HistogramAnalyzer{BrightThreshold: cfg.GetBrightPixelThreshold()},
		Clock:    clock,
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	runner := pipeline.NewRunner(p, videoSource)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// frame loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("pipeline stopped: %v", err)
		}
		log.Print("pipeline routine terminated")
		// A finished recording should bring the process down too.
		stop()
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(hub, runner).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
