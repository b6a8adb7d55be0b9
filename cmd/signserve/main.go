package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signbridge/sign-inference/internal/artifacts"
	"github.com/signbridge/sign-inference/internal/classifier"
	"github.com/signbridge/sign-inference/internal/config"
	"github.com/signbridge/sign-inference/internal/health"
	"github.com/signbridge/sign-inference/internal/logging"
	"github.com/signbridge/sign-inference/internal/metrics"
	"github.com/signbridge/sign-inference/internal/session"
	"github.com/signbridge/sign-inference/internal/workerpool"
	"github.com/signbridge/sign-inference/internal/wsapi"
)

var version = "0.1.0"

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "signserve",
	Short: "Real-time sign language detection inference service",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the inference WebSocket and health HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		serve()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("signserve v%s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	logFileFallback := false

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
			logFileFallback = true
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if logFileFallback {
		log.Warn("log file fallback active, logging to stdout only", "requestedFile", cfg.LogFile)
	}
}

// loadClassifier resolves the configured model artifact and loads it into
// an ONNX Runtime session. A failure here is logged and the server still
// starts, serving model_loaded=false on /health and "Model not loaded"
// errors on frame classification, rather than refusing to boot.
func loadClassifier(cfg *config.Config) classifier.Model {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	modelPath, err := artifacts.Fetch(ctx, cfg.ModelPath)
	if err != nil {
		log.Error("failed to fetch model artifact, inference disabled", "path", cfg.ModelPath, "error", err)
		return nil
	}

	model, err := classifier.Load(modelPath, cfg.OnnxRuntimeLib, cfg.SequenceLength, len(cfg.Actions))
	if err != nil {
		log.Error("failed to load classifier, inference disabled", "path", modelPath, "error", err)
		return nil
	}

	log.Info("classifier loaded", "path", modelPath, "sequenceLength", cfg.SequenceLength, "actions", len(cfg.Actions))
	return model
}

func serve() {
	cfg, warnings := config.Load()
	initLogging(cfg)
	for _, w := range warnings {
		log.Warn("config validation", "detail", w.Error())
	}

	log.Info("starting signserve", "version", version, "host", cfg.Host, "port", cfg.Port)

	model := loadClassifier(cfg)

	monitor := health.NewMonitor()
	if model != nil {
		monitor.Update("classifier", health.Healthy, "")
	} else {
		monitor.Update("classifier", health.Degraded, "model not loaded")
	}

	metricsReg := metrics.NewRegistry()
	pool := workerpool.New(cfg.InferenceWorkers, cfg.InferenceWorkers*4)

	sessionCfg := session.Config{
		Actions:             cfg.Actions,
		SequenceLength:      cfg.SequenceLength,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		StabilityWindow:     cfg.StabilityWindow,
		SentenceTimeout:     time.Duration(cfg.SentenceTimeoutSec * float64(time.Second)),
		RateLimitFrames:     cfg.RateLimitFrames,
		RateLimitWindow:     time.Duration(cfg.RateLimitWindowS * float64(time.Second)),
		MaxFramePayload:     cfg.MaxFramePayload,
		DetectionConfidence: cfg.DetectionConfidence,
		TrackingConfidence:  cfg.TrackingConfidence,
	}

	srv := wsapi.New(cfg.APIKey, cfg.CORSOrigins, sessionCfg, model, metricsReg, monitor, pool, nil)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: srv.Handler(),
	}

	go func() {
		log.Info("listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped unexpectedly", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	pool.StopAccepting()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	pool.Drain(drainCtx)
	if model != nil {
		if closer, ok := model.(interface{ Close() error }); ok {
			closer.Close()
		}
	}
	log.Info("signserve stopped")
}
