package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/campuswatch/internal/api"
	"github.com/your-org/campuswatch/internal/api/handlers"
	"github.com/your-org/campuswatch/internal/api/ws"
	"github.com/your-org/campuswatch/internal/config"
	"github.com/your-org/campuswatch/internal/observability"
	"github.com/your-org/campuswatch/internal/queue"
	"github.com/your-org/campuswatch/internal/recognition"
	"github.com/your-org/campuswatch/internal/storage"
	"github.com/your-org/campuswatch/internal/tracking"
	"github.com/your-org/campuswatch/internal/vision"
	"github.com/your-org/campuswatch/internal/visitor"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting campuswatch API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStream(context.Background()); err != nil {
		slog.Warn("ensure nats stream", "error", err)
	}

	// Initialize ONNX Runtime for the face pipeline. The service degrades to
	// manual confirmation if the models cannot be loaded.
	var visionSvc *vision.Service
	var encoder recognition.Encoder
	var emotion handlers.EmotionClassifier

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed, manual confirmation only", "error", err)
	} else {
		visionSvc, err = vision.NewService(cfg.Vision)
		if err != nil {
			slog.Warn("vision models init failed, manual confirmation only", "error", err)
		} else {
			encoder = visionSvc
			emotion = visionSvc
			defer visionSvc.Close()
			defer ort.DestroyEnvironment()
			slog.Info("vision pipeline ready")
		}
	}

	// Domain services
	recogSvc := recognition.NewService(db, encoder, cfg.Recognition.IdentityThreshold)
	tracker := tracking.New(db, cfg.Recognition.DebounceWindow)
	visitorSvc := visitor.NewService(
		db,
		minioStore,
		encoder,
		recogSvc.Gallery(),
		cfg.Recognition.IdentityThreshold,
		cfg.Recognition.VisitorThreshold,
	)

	// Warm the galleries from storage
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if n, err := recogSvc.Reload(initCtx); err != nil {
		slog.Warn("load identity gallery", "error", err)
	} else {
		observability.GallerySize.WithLabelValues("identity").Set(float64(n))
		slog.Info("identity gallery loaded", "entries", n)
	}
	if n, err := visitorSvc.Reload(initCtx); err != nil {
		slog.Warn("load visitor gallery", "error", err)
	} else {
		observability.GallerySize.WithLabelValues("visitor").Set(float64(n))
		slog.Info("visitor gallery loaded", "entries", n)
	}
	initCancel()

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Relay gate events from NATS to connected WebSocket dashboards
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create gate event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeGateEvents(ctx, "api-gate-events", func(ctx context.Context, msg jetstream.Msg) error {
		hub.BroadcastRaw(msg.Data())
		return nil
	})
	if err != nil {
		slog.Warn("start gate event consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		Location: cfg.Recognition.DefaultLocation,
		DB:       db,
		MinIO:    minioStore,
		Producer: producer,
		Hub:      hub,
		Recog:    recogSvc,
		Tracker:  tracker,
		Visitors: visitorSvc,
		Emotion:  emotion,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
