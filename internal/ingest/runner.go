package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"regsync/internal/identifier"
	idmetrics "regsync/internal/identifier/metrics"
	"regsync/internal/reconcile"
	dErrors "regsync/pkg/domain-errors"
)

const defaultWorkers = 8

// Runner replays a batch of source records through the reconciliation
// engine. Records are sharded by normalized registration number so two
// upserts for the same registration never run concurrently inside one
// batch; across batches the store's row lock does that job.
type Runner struct {
	reconciler   *reconcile.Service
	dedup        *Dedup
	parser       *identifier.Parser
	parseMetrics *idmetrics.Metrics
	workers      int
	logger       *slog.Logger
}

type RunnerOption func(*Runner)

func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithDedup(d *Dedup) RunnerOption {
	return func(r *Runner) {
		r.dedup = d
	}
}

// WithParser enables identifier-quality metrics: every record's raw
// identifier is classified and the parse level counted, independent of the
// join-key matching.
func WithParser(parser *identifier.Parser, m *idmetrics.Metrics) RunnerOption {
	return func(r *Runner) {
		r.parser = parser
		r.parseMetrics = m
	}
}

func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRunner(reconciler *reconcile.Service, opts ...RunnerOption) (*Runner, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("reconcile service is required")
	}
	r := &Runner{
		reconciler: reconciler,
		workers:    defaultWorkers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run processes one batch. Each record is its own transaction: a failure
// partway through leaves already-committed registrations correctly
// reconciled and returns the error for caller-level retry. Records with an
// unusable identifier are counted, logged, and skipped rather than failing
// the batch.
func (r *Runner) Run(ctx context.Context, src SourceConfig, runID string, records []SourceRecord) (*Report, error) {
	shards := make([][]SourceRecord, r.workers)
	report := &Report{RunID: runID}
	for _, rec := range records {
		if r.parser != nil {
			res := r.parser.Parse(rec.RegistrationNo)
			r.parseMetrics.ObserveParse(string(res.Level), string(res.RegnoType))
		}
		key, ok := identifier.Normalize(rec.RegistrationNo)
		if !ok {
			report.Invalid++
			r.logger.WarnContext(ctx, "record identifier unusable",
				"source", src.SourceKey, "run_id", runID, "raw", rec.RegistrationNo)
			continue
		}
		idx := shardIndex(key, r.workers)
		shards[idx] = append(shards[idx], rec)
	}

	g, ctx := errgroup.WithContext(ctx)
	partials := make([]Report, r.workers)
	for i, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		i, shard := i, shard
		g.Go(func() error {
			return r.runShard(ctx, src, runID, shard, &partials[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range partials {
		report.add(p)
	}
	report.Total = len(records)
	r.logger.InfoContext(ctx, "ingestion batch reconciled",
		"source", src.SourceKey,
		"run_id", runID,
		"total", report.Total,
		"applied", report.Applied,
		"rejected", report.Rejected,
		"conflicted", report.Conflicted,
		"invalid", report.Invalid,
		"skipped", report.Skipped,
	)
	return report, nil
}

func (r *Runner) runShard(ctx context.Context, src SourceConfig, runID string, shard []SourceRecord, partial *Report) error {
	for _, rec := range shard {
		seen, err := r.dedup.Seen(ctx, runID, src.SourceKey, rec)
		if err != nil {
			// The cache is an optimization; never fail a batch over it.
			r.logger.WarnContext(ctx, "dedup check failed", "error", err)
		} else if seen {
			partial.Skipped++
			continue
		}

		result, err := r.reconciler.Upsert(ctx, reconcile.UpsertRequest{
			RawRegistrationNo: rec.RegistrationNo,
			Fields:            rec.Fields,
			SourceKey:         src.SourceKey,
			SourceRunID:       runID,
			EvidenceGrade:     src.EvidenceGrade,
			SourcePriority:    src.SourcePriority,
			ObservedAt:        rec.ObservedAt,
			RawPayload:        rec.RawPayload,
		})
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvalidIdentifier) {
				partial.Invalid++
				continue
			}
			return err
		}
		partial.Applied += result.Applied
		partial.Rejected += result.Rejected
		partial.Conflicted += result.Conflicted
	}
	return nil
}

func shardIndex(key string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(workers))
}
