// ingestd is the reconciliation worker: it consumes raw source records from
// the observations topic, reconciles them into canonical registrations, and
// publishes the conflict-audit stream. Business logic lives in the internal
// services packages; this file only wires dependencies and the process
// lifecycle.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"regsync/internal/audit"
	"regsync/internal/conflict"
	"regsync/internal/identifier"
	idmetrics "regsync/internal/identifier/metrics"
	"regsync/internal/ingest"
	"regsync/internal/platform/config"
	"regsync/internal/platform/httpserver"
	"regsync/internal/platform/logger"
	platformredis "regsync/internal/platform/redis"
	"regsync/internal/reconcile"
	reconmetrics "regsync/internal/reconcile/metrics"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ingestd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return err
	}

	table := identifier.DefaultSchemeTable()
	if cfg.SchemeTablePath != "" {
		table, err = identifier.LoadSchemeTable(cfg.SchemeTablePath)
		if err != nil {
			return err
		}
	}
	parser, err := identifier.NewParser(table)
	if err != nil {
		return err
	}

	auditStore := audit.NewPostgresStore(db)
	reconciler, err := reconcile.New(
		reconcile.NewPostgresEntityStore(db),
		reconcile.NewPostgresChangeLog(db),
		conflict.NewPostgresStore(db),
		reconcile.NewPostgresTxRunner(db),
		reconcile.WithAuditPublisher(audit.NewPublisher(auditStore)),
		reconcile.WithMetrics(reconmetrics.New()),
		reconcile.WithLogger(log),
	)
	if err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var dedup *ingest.Dedup
	if redisClient != nil {
		defer redisClient.Close()
		dedup = ingest.NewDedup(redisClient.Client, 24*time.Hour)
	}

	runner, err := ingest.NewRunner(reconciler,
		ingest.WithDedup(dedup),
		ingest.WithParser(parser, idmetrics.New()),
		ingest.WithLogger(log),
	)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	srv := httpserver.New(cfg.OpsAddr, httpserver.NewOpsRouter(db))
	g.Go(func() error {
		log.Info("ops server listening", "addr", cfg.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Kafka.Enabled() {
		consumerClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.ConsumerGroup(cfg.Kafka.ConsumerGroup),
			kgo.ConsumeTopics(cfg.Kafka.ObservationsTopic),
			kgo.DisableAutoCommit(),
		)
		if err != nil {
			return err
		}
		defer consumerClient.Close()

		producerClient, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			return err
		}
		defer producerClient.Close()

		if err := ingest.EnsureTopics(ctx, producerClient,
			cfg.Kafka.ObservationsTopic, cfg.Kafka.AuditTopic); err != nil {
			return err
		}

		consumer, err := ingest.NewConsumer(consumerClient, runner, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			log.Info("observation consumer started", "topic", cfg.Kafka.ObservationsTopic)
			return consumer.Run(ctx)
		})

		outbox := audit.NewOutboxWorker(db, producerClient, cfg.Kafka.AuditTopic, log)
		g.Go(func() error {
			return outbox.Run(ctx)
		})
	} else {
		log.Info("kafka not configured; consumer and outbox worker disabled")
	}

	return g.Wait()
}
