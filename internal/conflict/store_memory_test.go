package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsync/pkg/domain"
)

func newEntry(registrationNo, field string, createdAt time.Time) *Entry {
	return &Entry{
		ID:             domain.NewConflictID(),
		RegistrationNo: registrationNo,
		FieldName:      field,
		Status:         StatusOpen,
		CreatedAt:      createdAt,
		Candidates: []Candidate{
			{SourceKey: "a", Value: "x", EvidenceGrade: domain.GradeB, SourcePriority: 50, ObservedAt: createdAt},
			{SourceKey: "b", Value: "y", EvidenceGrade: domain.GradeB, SourcePriority: 50, ObservedAt: createdAt},
		},
	}
}

func TestInMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	entry := newEntry("国械注准20231234", "status", base)
	require.NoError(t, store.Create(ctx, entry))

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := store.Get(ctx, entry.ID.String())
		require.NoError(t, err)
		require.NotNil(t, got)
		got.Candidates[0].Value = "mutated"

		again, err := store.Get(ctx, entry.ID.String())
		require.NoError(t, err)
		assert.Equal(t, "x", again.Candidates[0].Value)
	})

	t.Run("get missing returns nil", func(t *testing.T) {
		got, err := store.Get(ctx, domain.NewConflictID().String())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("find open by registration and field", func(t *testing.T) {
		got, err := store.FindOpen(ctx, "国械注准20231234", "status")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, entry.ID, got.ID)

		got, err = store.FindOpen(ctx, "国械注准20231234", "manufacturer")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("closed entries drop out of open listings", func(t *testing.T) {
		closed := entry.Clone()
		now := base.Add(time.Hour)
		closed.Status = StatusResolved
		closed.ResolvedAt = &now
		require.NoError(t, store.Update(ctx, closed))

		open, err := store.ListOpen(ctx)
		require.NoError(t, err)
		assert.Empty(t, open)

		got, err := store.FindOpen(ctx, "国械注准20231234", "status")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestInMemoryStoreReporting(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Create(ctx, newEntry("reg-one", "status", base)))
	require.NoError(t, store.Create(ctx, newEntry("reg-one", "manufacturer", base.Add(time.Minute))))
	require.NoError(t, store.Create(ctx, newEntry("reg-two", "status", base.Add(2*time.Minute))))

	t.Run("list open oldest first", func(t *testing.T) {
		open, err := store.ListOpen(ctx)
		require.NoError(t, err)
		require.Len(t, open, 3)
		assert.Equal(t, "status", open[0].FieldName)
		assert.Equal(t, "reg-one", open[0].RegistrationNo)
		assert.Equal(t, "reg-two", open[2].RegistrationNo)
	})

	t.Run("list open by registration", func(t *testing.T) {
		open, err := store.ListOpenByRegistration(ctx, "reg-one")
		require.NoError(t, err)
		assert.Len(t, open, 2)
	})

	t.Run("counts sorted most disputed first", func(t *testing.T) {
		counts, err := store.OpenCountsByRegistration(ctx)
		require.NoError(t, err)
		require.Len(t, counts, 2)
		assert.Equal(t, RegistrationCount{RegistrationNo: "reg-one", Open: 2}, counts[0])
		assert.Equal(t, RegistrationCount{RegistrationNo: "reg-two", Open: 1}, counts[1])
	})

	t.Run("top fields honor window and limit", func(t *testing.T) {
		fields, err := store.TopFieldsSince(ctx, base, 10)
		require.NoError(t, err)
		require.Len(t, fields, 2)
		assert.Equal(t, FieldCount{FieldName: "status", Count: 2}, fields[0])

		fields, err = store.TopFieldsSince(ctx, base.Add(30*time.Second), 10)
		require.NoError(t, err)
		require.Len(t, fields, 2)
		assert.Equal(t, 1, fields[0].Count)

		fields, err = store.TopFieldsSince(ctx, base, 1)
		require.NoError(t, err)
		assert.Len(t, fields, 1)
	})
}

func TestAddCandidate(t *testing.T) {
	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	entry := &Entry{Status: StatusOpen}

	t.Run("new candidate appends", func(t *testing.T) {
		assert.True(t, entry.AddCandidate(Candidate{SourceKey: "a", Value: "x", ObservedAt: base}))
		assert.True(t, entry.AddCandidate(Candidate{SourceKey: "a", Value: "y", ObservedAt: base}))
		assert.Len(t, entry.Candidates, 2)
	})

	t.Run("duplicate source and value dedups", func(t *testing.T) {
		assert.False(t, entry.AddCandidate(Candidate{SourceKey: "a", Value: "x", ObservedAt: base}))
		assert.Len(t, entry.Candidates, 2)
	})

	t.Run("newer observation refreshes the slot", func(t *testing.T) {
		assert.True(t, entry.AddCandidate(Candidate{SourceKey: "a", Value: "x", ObservedAt: base.Add(time.Hour)}))
		assert.Len(t, entry.Candidates, 2)
		assert.Equal(t, base.Add(time.Hour), entry.Candidates[0].ObservedAt)
	})

	t.Run("older observation is a no-op", func(t *testing.T) {
		assert.False(t, entry.AddCandidate(Candidate{SourceKey: "a", Value: "x", ObservedAt: base.Add(-time.Hour)}))
		assert.Equal(t, base.Add(time.Hour), entry.Candidates[0].ObservedAt)
	})
}
