//go:build integration

package reconcile_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsync/internal/audit"
	"regsync/internal/conflict"
	"regsync/internal/reconcile"
	"regsync/pkg/domain"
	"regsync/pkg/testutil/containers"
)

func newPostgresService(t *testing.T) (*reconcile.Service, *conflict.PostgresStore, *audit.PostgresStore) {
	t.Helper()

	pg := containers.NewPostgresContainer(t)
	pg.ApplyMigrations(t, filepath.Join("..", "..", "migrations", "001_init.sql"))

	conflicts := conflict.NewPostgresStore(pg.DB)
	audits := audit.NewPostgresStore(pg.DB)
	svc, err := reconcile.New(
		reconcile.NewPostgresEntityStore(pg.DB),
		reconcile.NewPostgresChangeLog(pg.DB),
		conflicts,
		reconcile.NewPostgresTxRunner(pg.DB),
		reconcile.WithAuditPublisher(audit.NewPublisher(audits)),
	)
	require.NoError(t, err)
	return svc, conflicts, audits
}

func TestPostgresUpsertRoundTrip(t *testing.T) {
	svc, conflicts, audits := newPostgresService(t)
	ctx := context.Background()
	base := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)

	submit := func(source string, grade domain.EvidenceGrade, priority int, at time.Time, value string) *reconcile.UpsertResult {
		res, err := svc.Upsert(ctx, reconcile.UpsertRequest{
			RawRegistrationNo: "国械注准20153540528",
			Fields:            map[string]string{"status": value},
			SourceKey:         source,
			EvidenceGrade:     grade,
			SourcePriority:    priority,
			ObservedAt:        at,
		})
		require.NoError(t, err)
		return res
	}

	// create, then displace with a stronger grade
	first := submit("prov-gd", domain.GradeB, 50, base, "有效")
	assert.True(t, first.Created)
	submit("nmpa", domain.GradeA, 10, base.Add(time.Hour), "注销")

	entity, err := svc.Entity(ctx, "国械注准20153540528")
	require.NoError(t, err)
	assert.Equal(t, "注销", entity.Fields["status"])
	assert.Equal(t, "nmpa", entity.Provenance["status"].SourceKey)

	history, err := svc.History(ctx, first.RegistrationID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// a tie against the A-grade value opens one conflict entry
	res := submit("nmpa-mirror", domain.GradeA, 10, base.Add(time.Hour), "已过期")
	assert.Equal(t, 1, res.Conflicted)

	open, err := conflicts.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Len(t, open[0].Candidates, 2)

	// the automatic displacement above left an audit row
	events, err := audits.ListByRegistration(ctx, "国械注准20153540528")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.DecidedAutomatic, events[0].DecidedBy)
}

func TestPostgresConcurrentSameRegistration(t *testing.T) {
	svc, _, _ := newPostgresService(t)
	ctx := context.Background()
	base := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)

	_, err := svc.Upsert(ctx, reconcile.UpsertRequest{
		RawRegistrationNo: "粤械备20140023号",
		Fields:            map[string]string{"counter": "0"},
		SourceKey:         "seed",
		EvidenceGrade:     domain.GradeB,
		SourcePriority:    50,
		ObservedAt:        base,
	})
	require.NoError(t, err)

	// ten writers race on the same row; the row lock must serialize them so
	// every strictly-newer observation lands
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		i := i
		go func() {
			_, err := svc.Upsert(ctx, reconcile.UpsertRequest{
				RawRegistrationNo: "粤械备20140023号",
				Fields:            map[string]string{"counter": "1"},
				SourceKey:         "seed",
				EvidenceGrade:     domain.GradeB,
				SourcePriority:    50,
				ObservedAt:        base.Add(time.Duration(i+1) * time.Second),
			})
			errs <- err
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errs)
	}

	entity, err := svc.Entity(ctx, "粤械备20140023号")
	require.NoError(t, err)
	assert.Equal(t, "1", entity.Fields["counter"])
	assert.Equal(t, base.Add(10*time.Second), entity.Provenance["counter"].ObservedAt.UTC())

	history, err := svc.History(ctx, entity.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "value changed once; provenance refreshes log nothing")
}
