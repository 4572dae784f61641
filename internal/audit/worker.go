package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// OutboxWorker drains committed outbox rows to Kafka. Rows are marked
// published only after the broker acknowledges, so a crash between publish
// and mark yields at-least-once delivery; consumers must dedupe on payload
// id.
type OutboxWorker struct {
	db       *sql.DB
	client   *kgo.Client
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewOutboxWorker(db *sql.DB, client *kgo.Client, topic string, logger *slog.Logger) *OutboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxWorker{
		db:       db,
		client:   client,
		topic:    topic,
		interval: time.Second,
		batch:    100,
		logger:   logger,
	}
}

// Run polls until the context is cancelled. Publish failures are logged and
// retried on the next tick; the outbox row stays unpublished meanwhile.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.WarnContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id      uuid.UUID
	key     string
	payload []byte
}

func (w *OutboxWorker) drainOnce(ctx context.Context) error {
	rows, err := w.db.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, w.batch)
	if err != nil {
		return fmt.Errorf("select outbox: %w", err)
	}
	var pending []outboxRow
	for rows.Next() {
		var r outboxRow
		if err := rows.Scan(&r.id, &r.key, &r.payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox: %w", err)
		}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range pending {
		record := &kgo.Record{
			Topic: w.topic,
			Key:   []byte(r.key),
			Value: r.payload,
		}
		if err := w.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			return fmt.Errorf("produce audit event: %w", err)
		}
		if _, err := w.db.ExecContext(ctx,
			`UPDATE outbox SET published_at = $2 WHERE id = $1`, r.id, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
	}
	return nil
}
