// Server serves the public enquiry API. With QUEUE_BACKEND=memory it also runs the submission
// workers; with kafka it only enqueues and cmd/worker delivers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enquiry-socket/internal/activity"
	"enquiry-socket/internal/app"
	"enquiry-socket/internal/config"
	enquiryhandler "enquiry-socket/internal/enquiry/handler"
	"enquiry-socket/internal/enquiry/pipeline"
	healthhandler "enquiry-socket/internal/health/handler"
	"enquiry-socket/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, "server")
	if err != nil {
		return err
	}
	logger := a.Logger

	var (
		queue  pipeline.Queue
		closeQ func(context.Context) error
	)
	switch cfg.QueueBackend {
	case "kafka":
		kq, err := pipeline.NewKafkaQueue(cfg.KafkaBrokersList(), cfg.EnquiryKafkaTopic)
		if err != nil {
			_ = a.Close(context.Background())
			return err
		}
		queue = kq
		closeQ = func(context.Context) error { return kq.Close() }
	default:
		mq := pipeline.NewMemoryQueue(cfg.PipelineWorkers, cfg.PipelineQueueSize)
		mq.Start(ctx, a.Processor.Handle)
		queue = mq
		closeQ = mq.Close
	}

	router := server.NewRouter(server.Deps{
		Enquiry: enquiryhandler.NewHandler(a.Companies, a.Schemas, queue, cfg.MasterKey, logger),
		Health:  healthhandler.NewServer(a.DB),
		Logger:  logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "queue_backend", cfg.QueueBackend, "cache_backend", cfg.EnquiryCacheBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down http server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	if err := closeQ(shutdownCtx); err != nil {
		logger.Error("queue shutdown", "error", err)
	}
	time.Sleep(activity.ShutdownDrainDuration)
	if err := a.Close(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	logger.Info("http server stopped")
	return nil
}
