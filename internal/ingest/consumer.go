package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"regsync/pkg/domain"
)

// envelope is the wire shape on the observations topic: one source record
// plus the reconciliation inputs of the source that produced it.
type envelope struct {
	SourceKey      string       `json:"source_key"`
	RunID          string       `json:"run_id"`
	EvidenceGrade  string       `json:"evidence_grade"`
	SourcePriority int          `json:"source_priority"`
	Record         SourceRecord `json:"record"`
}

// Consumer feeds the reconciliation engine from the observations topic.
// Offsets are committed only after the poll's records are reconciled, so a
// crash replays them; replay is safe because upsert is idempotent and the
// dedup cache skips the bulk of it.
type Consumer struct {
	client *kgo.Client
	runner *Runner
	logger *slog.Logger
}

func NewConsumer(client *kgo.Client, runner *Runner, logger *slog.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("kafka client is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{client: client, runner: runner, logger: logger}, nil
}

// Run polls until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.WarnContext(ctx, "fetch error",
				"topic", topic, "partition", partition, "error", err)
		})

		if err := c.processFetches(ctx, fetches); err != nil {
			return err
		}
		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			c.logger.WarnContext(ctx, "offset commit failed", "error", err)
		}
	}
}

func (c *Consumer) processFetches(ctx context.Context, fetches kgo.Fetches) error {
	// Group records by (source, run) so each group reconciles as one batch
	// with one report.
	type groupKey struct{ source, run string }
	groups := make(map[groupKey][]SourceRecord)
	configs := make(map[groupKey]SourceConfig)

	fetches.EachRecord(func(record *kgo.Record) {
		var env envelope
		if err := json.Unmarshal(record.Value, &env); err != nil {
			c.logger.WarnContext(ctx, "malformed observation record",
				"offset", record.Offset, "error", err)
			return
		}
		grade, err := domain.ParseEvidenceGrade(env.EvidenceGrade)
		if err != nil {
			c.logger.WarnContext(ctx, "observation with unknown grade",
				"source", env.SourceKey, "grade", env.EvidenceGrade)
			return
		}
		key := groupKey{source: env.SourceKey, run: env.RunID}
		groups[key] = append(groups[key], env.Record)
		configs[key] = SourceConfig{
			SourceKey:      env.SourceKey,
			EvidenceGrade:  grade,
			SourcePriority: env.SourcePriority,
		}
	})

	for key, records := range groups {
		if _, err := c.runner.Run(ctx, configs[key], key.run, records); err != nil {
			return fmt.Errorf("reconcile batch source=%s run=%s: %w", key.source, key.run, err)
		}
	}
	return nil
}

// EnsureTopics creates the observation and audit topics when they do not
// exist yet; an already-exists response is fine.
func EnsureTopics(ctx context.Context, client *kgo.Client, topics ...string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, res := range resp.Sorted() {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}
