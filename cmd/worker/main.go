// Worker consumes submission jobs from Kafka and runs each through captcha verification and the
// enquiry post. Requires QUEUE_BACKEND=kafka with KAFKA_BROKERS set; run alongside cmd/server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enquiry-socket/internal/activity"
	"enquiry-socket/internal/app"
	"enquiry-socket/internal/config"
	"enquiry-socket/internal/enquiry/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.QueueBackend != "kafka" {
		return errors.New("QUEUE_BACKEND=kafka is required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, "worker")
	if err != nil {
		return err
	}
	consumer := pipeline.NewKafkaConsumer(cfg.KafkaBrokersList(), cfg.EnquiryKafkaTopic, cfg.KafkaGroupID, a.Processor.Handle)

	a.Logger.Info("worker consuming", "topic", cfg.EnquiryKafkaTopic, "group_id", cfg.KafkaGroupID)
	runErr := consumer.Run(ctx)
	a.Logger.Info("worker stopping")

	if err := consumer.Close(); err != nil {
		a.Logger.Error("kafka reader close", "error", err)
	}
	time.Sleep(activity.ShutdownDrainDuration)
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(runErr, a.Close(closeCtx))
}
