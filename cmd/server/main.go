package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/leaf-api/internal/config"
	"github.com/Brownie44l1/leaf-api/internal/handlers"
	"github.com/Brownie44l1/leaf-api/internal/metrics"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	ort "github.com/yalue/onnxruntime_go"
)

func createServer(cfg *config.Config, predictor model.Predictor, metadata model.Metadata, m *metrics.Metrics) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(m.Middleware)

	preprocessOpts := metadata.PreprocessOptions()
	preprocessOpts.MaxPixels = cfg.MaxImagePixels

	handler := handlers.NewHandler(predictor, handlers.Options{
		Preprocess:         preprocessOpts,
		UploadDir:          cfg.UploadDir,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		DistinctErrorCodes: cfg.DistinctErrorCodes,
		Metrics:            m,
	})
	handler.AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	var envFile string
	flag.StringVar(&envFile, "env", "", "path to load env from")
	flag.Parse()

	config.LoadEnvFile(envFile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	slog.SetDefault(cfg.Logger())

	root, err := config.ProjectRoot()
	if err != nil {
		log.Fatalf("%v", err)
	}
	modelPath, metadataPath := cfg.ModelPaths(root)

	if cfg.OnnxRuntimeDylib != "" {
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeDylib)
	}

	slog.Info("loading model", "path", modelPath, "metadata", metadataPath)

	// Serving without a model would fail every prediction, so refuse to start.
	modelServer, err := model.NewServer(modelPath, metadataPath)
	if err != nil {
		log.Fatalf("Failed to initialize model server: %v", err)
	}
	defer modelServer.Close()

	server := createServer(cfg, modelServer, modelServer.Metadata, metrics.New())

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "port", cfg.Port, "classes", modelServer.Metadata.Classes)
	slog.Info("endpoints", "health", "GET /", "predict", "POST /predict (multipart field 'file')", "metrics", "GET /metrics")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}

	slog.Info("server stopped")
}
