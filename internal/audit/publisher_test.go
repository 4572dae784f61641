package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsync/pkg/domain"
)

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	publisher := NewPublisher(store)

	t.Run("assigns id and timestamp when unset", func(t *testing.T) {
		err := publisher.Emit(ctx, Event{
			RegistrationNo: "国械注准20153540528",
			FieldName:      "status",
			DecidedBy:      DecidedAutomatic,
			WinnerSource:   "nmpa",
			WinnerValue:    "注销",
			Basis:          "evidence_grade",
		})
		require.NoError(t, err)

		events, err := publisher.List(ctx, "国械注准20153540528")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.False(t, events[0].ID.IsNil())
		assert.False(t, events[0].Timestamp.IsZero())
	})

	t.Run("preserves caller-supplied id and timestamp", func(t *testing.T) {
		id := domain.NewAuditID()
		at := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
		err := publisher.Emit(ctx, Event{
			ID:             id,
			RegistrationNo: "粤械备20140023号",
			FieldName:      "manufacturer",
			DecidedBy:      DecidedManual,
			WinnerValue:    "厂商甲",
			Basis:          "manual_resolution",
			Reason:         "verified via bulletin",
			Timestamp:      at,
		})
		require.NoError(t, err)

		events, err := publisher.List(ctx, "粤械备20140023号")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, id, events[0].ID)
		assert.Equal(t, at, events[0].Timestamp)
		assert.Equal(t, "verified via bulletin", events[0].Reason)
	})

	t.Run("list scopes by registration", func(t *testing.T) {
		events, err := publisher.List(ctx, "国械注准20153540528")
		require.NoError(t, err)
		assert.Len(t, events, 1)

		events, err = publisher.List(ctx, "unknown")
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
