package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsync/internal/audit"
	"regsync/internal/conflict"
	"regsync/internal/identifier"
	"regsync/internal/reconcile"
	"regsync/pkg/domain"
)

func newTestReconciler(t *testing.T) *reconcile.Service {
	t.Helper()
	svc, err := reconcile.New(
		reconcile.NewInMemoryEntityStore(),
		reconcile.NewInMemoryChangeLog(),
		conflict.NewInMemoryStore(),
		reconcile.NewMemoryTxRunner(),
		reconcile.WithAuditPublisher(audit.NewPublisher(audit.NewInMemoryStore())),
	)
	require.NoError(t, err)
	return svc
}

func TestRunnerRun(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC)
	src := SourceConfig{SourceKey: "nmpa", EvidenceGrade: domain.GradeA, SourcePriority: 10}

	reconciler := newTestReconciler(t)
	parser, err := identifier.NewParser(identifier.DefaultSchemeTable())
	require.NoError(t, err)
	runner, err := NewRunner(reconciler, WithParser(parser, nil), WithWorkers(4))
	require.NoError(t, err)

	records := []SourceRecord{
		{RegistrationNo: "国械注准20153540528", Fields: map[string]string{"status": "有效"}, ObservedAt: base},
		{RegistrationNo: "粤械备20140023号", Fields: map[string]string{"status": "有效"}, ObservedAt: base},
		{RegistrationNo: "（）－", Fields: map[string]string{"status": "有效"}, ObservedAt: base},
	}

	report, err := runner.Run(ctx, src, "run-001", records)
	require.NoError(t, err)

	assert.Equal(t, "run-001", report.RunID)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Invalid)
	assert.Zero(t, report.Rejected)
	assert.Zero(t, report.Skipped)

	entity, err := reconciler.Entity(ctx, "国械注准20153540528")
	require.NoError(t, err)
	assert.Equal(t, "nmpa", entity.Provenance["status"].SourceKey)
}

func TestRunnerRejectionsAndConflicts(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC)
	reconciler := newTestReconciler(t)
	runner, err := NewRunner(reconciler)
	require.NoError(t, err)

	// seed with a grade-B source
	_, err = runner.Run(ctx, SourceConfig{SourceKey: "prov-gd", EvidenceGrade: domain.GradeB, SourcePriority: 50}, "seed", []SourceRecord{
		{RegistrationNo: "国械注准20231234", Fields: map[string]string{"manufacturer": "厂商甲"}, ObservedAt: base},
	})
	require.NoError(t, err)

	// lower grade bounces, equal tier with a new value conflicts
	report, err := runner.Run(ctx, SourceConfig{SourceKey: "scrape", EvidenceGrade: domain.GradeD, SourcePriority: 200}, "run-d", []SourceRecord{
		{RegistrationNo: "国械注准20231234", Fields: map[string]string{"manufacturer": "厂商乙"}, ObservedAt: base.Add(time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rejected)

	report, err = runner.Run(ctx, SourceConfig{SourceKey: "prov-zj", EvidenceGrade: domain.GradeB, SourcePriority: 50}, "run-b", []SourceRecord{
		{RegistrationNo: "国械注准20231234", Fields: map[string]string{"manufacturer": "厂商丙"}, ObservedAt: base},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Conflicted)
}

// Many records for many registrations through a small worker pool; every
// registration must land and same-registration records must not race.
func TestRunnerShardsByRegistration(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC)
	reconciler := newTestReconciler(t)
	runner, err := NewRunner(reconciler, WithWorkers(3))
	require.NoError(t, err)

	var records []SourceRecord
	for i := 0; i < 20; i++ {
		regno := fmt.Sprintf("国械注准2024%04d", i)
		records = append(records,
			SourceRecord{RegistrationNo: regno, Fields: map[string]string{"status": "有效"}, ObservedAt: base},
			SourceRecord{RegistrationNo: regno, Fields: map[string]string{"status": "注销"}, ObservedAt: base.Add(time.Hour)},
		)
	}

	src := SourceConfig{SourceKey: "nmpa", EvidenceGrade: domain.GradeA, SourcePriority: 10}
	report, err := runner.Run(ctx, src, "run-bulk", records)
	require.NoError(t, err)

	assert.Equal(t, 40, report.Total)
	assert.Equal(t, 40, report.Applied)
	assert.Zero(t, report.Invalid)

	for i := 0; i < 20; i++ {
		entity, err := reconciler.Entity(ctx, fmt.Sprintf("国械注准2024%04d", i))
		require.NoError(t, err)
		assert.Equal(t, "注销", entity.Fields["status"])
	}
}

func TestDedupNilIsNeverSeen(t *testing.T) {
	var d *Dedup
	seen, err := d.Seen(context.Background(), "run", "src", SourceRecord{RegistrationNo: "x"})
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestRecordDigestStable(t *testing.T) {
	base := time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC)
	rec := SourceRecord{
		RegistrationNo: "国械注准20153540528",
		Fields:         map[string]string{"b": "2", "a": "1"},
		ObservedAt:     base,
	}
	first, err := recordDigest(rec)
	require.NoError(t, err)
	second, err := recordDigest(SourceRecord{
		RegistrationNo: "国械注准20153540528",
		Fields:         map[string]string{"a": "1", "b": "2"},
		ObservedAt:     base,
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	changed, err := recordDigest(SourceRecord{
		RegistrationNo: "国械注准20153540528",
		Fields:         map[string]string{"a": "1", "b": "3"},
		ObservedAt:     base,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}
