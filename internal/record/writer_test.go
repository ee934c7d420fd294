package record

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hearth/internal/db"
	"github.com/roach88/hearth/internal/filters"
	"github.com/roach88/hearth/internal/model"
	"github.com/roach88/hearth/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWriter(t *testing.T, opts Options) (*Writer, *db.Store) {
	t.Helper()
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	writer, err := NewWriter(store, opts)
	require.NoError(t, err)
	require.NoError(t, writer.StartAt(context.Background(),
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
	return writer, store
}

func stateEvent(entityID, state string, attrs map[string]any, updated time.Time) model.StateChangedEvent {
	return model.StateChangedEvent{
		EntityID:    entityID,
		State:       state,
		Attributes:  attrs,
		LastUpdated: updated,
		LastChanged: updated,
	}
}

func countRows(t *testing.T, store *db.Store, table string) int {
	t.Helper()
	var n int
	err := store.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestWriterRequiresModernSchema(t *testing.T) {
	store, err := db.OpenLegacy(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = NewWriter(store, Options{Logger: testLogger()})
	assert.Error(t, err)
}

func TestFlushWritesStates(t *testing.T) {
	writer, store := newTestWriter(t, Options{})
	ctx := context.Background()
	clock := testutil.NewSteppingClock(time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC), time.Minute)

	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "on", nil, clock.Next())))
	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "off", nil, clock.Next())))
	assert.Equal(t, 0, countRows(t, store, "states"), "nothing written before flush")

	require.NoError(t, writer.Flush(ctx))
	assert.Equal(t, 2, countRows(t, store, "states"))
	assert.Equal(t, 1, countRows(t, store, "states_meta"))
}

func TestFlushEmptyBufferIsNoOp(t *testing.T) {
	writer, _ := newTestWriter(t, Options{})
	require.NoError(t, writer.Flush(context.Background()))
}

func TestAttributeDeduplication(t *testing.T) {
	writer, store := newTestWriter(t, Options{})
	ctx := context.Background()
	clock := testutil.NewSteppingClock(time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC), time.Minute)

	attrs := map[string]any{"brightness": float64(128), "color_temp": float64(370)}
	sameAttrs := map[string]any{"color_temp": float64(370), "brightness": float64(128)}

	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "on", attrs, clock.Next())))
	require.NoError(t, writer.RecordState(ctx, stateEvent("light.hall", "on", sameAttrs, clock.Next())))
	require.NoError(t, writer.RecordState(ctx, stateEvent("light.porch", "on", map[string]any{"brightness": float64(64)}, clock.Next())))
	require.NoError(t, writer.Flush(ctx))

	// Key order does not matter: canonical bytes decide identity.
	assert.Equal(t, 2, countRows(t, store, "state_attributes"))
	assert.Equal(t, 3, countRows(t, store, "states"))
}

func TestOldStateIDChaining(t *testing.T) {
	writer, store := newTestWriter(t, Options{})
	ctx := context.Background()
	clock := testutil.NewSteppingClock(time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC), time.Minute)

	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "on", nil, clock.Next())))
	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "off", nil, clock.Next())))
	require.NoError(t, writer.Flush(ctx))

	// A later batch keeps the chain going.
	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "on", nil, clock.Next())))
	require.NoError(t, writer.Flush(ctx))

	rows, err := store.DB().Query(
		"SELECT state_id, old_state_id FROM states ORDER BY state_id")
	require.NoError(t, err)
	defer rows.Close()

	type link struct {
		id  int64
		old *int64
	}
	var links []link
	for rows.Next() {
		var l link
		require.NoError(t, rows.Scan(&l.id, &l.old))
		links = append(links, l)
	}
	require.NoError(t, rows.Err())
	require.Len(t, links, 3)

	assert.Nil(t, links[0].old, "first row has no predecessor")
	require.NotNil(t, links[1].old)
	assert.Equal(t, links[0].id, *links[1].old)
	require.NotNil(t, links[2].old)
	assert.Equal(t, links[1].id, *links[2].old)
}

func TestFilterSkipsExcludedEntities(t *testing.T) {
	writer, store := newTestWriter(t, Options{
		Filter: filters.New(filters.Config{ExcludeDomains: []string{"sensor"}}),
	})
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)

	require.NoError(t, writer.RecordState(ctx, stateEvent("sensor.noise", "1", nil, now)))
	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "on", nil, now)))
	require.NoError(t, writer.Flush(ctx))

	assert.Equal(t, 1, countRows(t, store, "states"))
	assert.Equal(t, 1, countRows(t, store, "states_meta"))
}

func TestContextIDMintedWhenMissing(t *testing.T) {
	writer, store := newTestWriter(t, Options{})
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)

	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "on", nil, now)))
	require.NoError(t, writer.Flush(ctx))

	var contextID string
	require.NoError(t, store.DB().QueryRow("SELECT context_id FROM states").Scan(&contextID))
	assert.NotEmpty(t, contextID)
}

func TestLastChangedStoredOnlyWhenDifferent(t *testing.T) {
	writer, store := newTestWriter(t, Options{})
	ctx := context.Background()
	changed := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	updated := changed.Add(30 * time.Minute)

	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "on", nil, changed)))
	require.NoError(t, writer.RecordState(ctx, model.StateChangedEvent{
		EntityID:    "light.kitchen",
		State:       "on",
		LastUpdated: updated,
		LastChanged: changed,
	}))
	require.NoError(t, writer.Flush(ctx))

	rows, err := store.DB().Query(
		"SELECT last_changed_ts FROM states ORDER BY state_id")
	require.NoError(t, err)
	defer rows.Close()

	var values []*float64
	for rows.Next() {
		var v *float64
		require.NoError(t, rows.Scan(&v))
		values = append(values, v)
	}
	require.NoError(t, rows.Err())
	require.Len(t, values, 2)

	assert.Nil(t, values[0], "equal change time stored as NULL")
	require.NotNil(t, values[1])
	assert.Equal(t, model.TS(changed), *values[1])
}

func TestRecordEvent(t *testing.T) {
	writer, store := newTestWriter(t, Options{})
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)

	require.NoError(t, writer.RecordEvent(ctx, model.Event{
		Type:      "service_called",
		Data:      map[string]any{"service": "light.turn_on"},
		TimeFired: now,
	}))
	require.NoError(t, writer.RecordEvent(ctx, model.Event{
		Type:      "service_called",
		Data:      map[string]any{"service": "light.turn_on"},
		TimeFired: now.Add(time.Minute),
	}))
	require.NoError(t, writer.Flush(ctx))

	assert.Equal(t, 2, countRows(t, store, "events"))
	assert.Equal(t, 1, countRows(t, store, "event_types"))
	assert.Equal(t, 1, countRows(t, store, "event_data"), "identical payloads share a blob")
}

func TestRemovedStateStoredEmpty(t *testing.T) {
	writer, store := newTestWriter(t, Options{})
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)

	require.NoError(t, writer.RecordState(ctx, model.StateChangedEvent{
		EntityID:    "light.kitchen",
		State:       "on",
		Removed:     true,
		LastUpdated: now,
		LastChanged: now,
	}))
	require.NoError(t, writer.Flush(ctx))

	var state string
	var attrsID *int64
	require.NoError(t, store.DB().QueryRow(
		"SELECT state, attributes_id FROM states").Scan(&state, &attrsID))
	assert.Empty(t, state)
	assert.Nil(t, attrsID)
}

func TestRenameEntity(t *testing.T) {
	writer, _ := newTestWriter(t, Options{})
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)

	require.NoError(t, writer.RecordState(ctx, stateEvent("light.old", "on", nil, now)))
	require.NoError(t, writer.Flush(ctx))

	require.NoError(t, writer.RenameEntity(ctx, "light.old", "light.new"))

	ids, err := writer.EntityIDs().GetMany(ctx, writer.store.DB(), []string{"light.new", "light.old"})
	require.NoError(t, err)
	assert.Contains(t, ids, "light.new")
	assert.NotContains(t, ids, "light.old")
}

func TestCloseEndsRun(t *testing.T) {
	writer, store := newTestWriter(t, Options{})
	ctx := context.Background()

	require.NoError(t, writer.RecordState(ctx,
		stateEvent("light.kitchen", "on", nil, time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC))))
	require.NoError(t, writer.Close(ctx))

	assert.Equal(t, 1, countRows(t, store, "states"), "close flushes the buffer")
	_, open, err := store.CurrentRun(ctx)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestAutoFlushAtBatchSize(t *testing.T) {
	writer, store := newTestWriter(t, Options{BatchSize: 2})
	ctx := context.Background()
	clock := testutil.NewSteppingClock(time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC), time.Minute)

	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "on", nil, clock.Next())))
	assert.Equal(t, 0, countRows(t, store, "states"))

	require.NoError(t, writer.RecordState(ctx, stateEvent("light.kitchen", "off", nil, clock.Next())))
	assert.Equal(t, 2, countRows(t, store, "states"), "threshold reached, batch flushed")
}
