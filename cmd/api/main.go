package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"campaignd/internal/app"
	"campaignd/internal/awsutil"
	"campaignd/internal/config"
	"campaignd/internal/httpserver"
	"campaignd/internal/logging"
	"campaignd/internal/observability"
	sqsqueue "campaignd/internal/queue/sqs"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Open(ctx, cfg.DispatchConfig)
	if err != nil {
		slog.Error("api dispatch runtime init failed", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	observability.Register(prometheus.DefaultRegisterer)

	api := &httpserver.API{Svc: rt.Service}
	if cfg.SQSQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("api sqs client init failed", "err", err)
			os.Exit(1)
		}
		api.Queue = &sqsqueue.Producer{SQS: sqsClient, QueueURL: cfg.SQSQueueURL}
	}

	checks := make([]httpserver.ReadyzCheck, 0, len(rt.Checks))
	for _, c := range rt.Checks {
		checks = append(checks, c)
	}

	s := httpserver.New()
	api.Register(s.Mux)
	s.Mux.HandleFunc("/healthz", httpserver.Healthz()).Methods(http.MethodGet)
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, checks...)).Methods(http.MethodGet)

	// dispatch runs synchronously inside the request, so no write timeout
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()

	slog.Info("api listening", "port", cfg.Port, "transport", cfg.Transport, "enqueue", api.Queue != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}
}
