package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/hearth/internal/model"
)

func TestLazyStateLastChangedFallsBack(t *testing.T) {
	r := row("light.kitchen", "on", 100)
	ls := newLazyState(r, newAttrCache(testLogger()))

	assert.Equal(t, ls.LastUpdated(), ls.LastChanged())
	assert.Equal(t, model.FromTS(100), ls.LastUpdated())
}

func TestLazyStateDistinctLastChanged(t *testing.T) {
	r := row("light.kitchen", "on", 200)
	r.lastChangedTS = 100
	r.hasLastChanged = true
	ls := newLazyState(r, newAttrCache(testLogger()))

	assert.Equal(t, model.FromTS(100), ls.LastChanged())
	assert.Equal(t, model.FromTS(200), ls.LastUpdated())
}

func TestLazyStateAttributesDecoded(t *testing.T) {
	r := row("light.kitchen", "on", 100)
	r.attrs = `{"brightness":128}`
	ls := newLazyState(r, newAttrCache(testLogger()))

	attrs := ls.Attributes()
	assert.Equal(t, float64(128), attrs["brightness"])
}

func TestAttrCacheMemoizesByBlobID(t *testing.T) {
	cache := newAttrCache(testLogger())

	first := cache.decode(42, `{"brightness":128}`)
	// Same blob id returns the identical map even if the raw text were to
	// differ; blob ids are content-addressed upstream.
	second := cache.decode(42, `ignored`)

	assert.Equal(t, first, second)
	first["probe"] = true
	assert.Contains(t, second, "probe", "memoized decode must return the shared map")
}

func TestAttrCacheZeroBlobIDNotMemoized(t *testing.T) {
	cache := newAttrCache(testLogger())

	first := cache.decode(0, `{"a":1}`)
	second := cache.decode(0, `{"b":2}`)

	assert.Contains(t, first, "a")
	assert.Contains(t, second, "b")
	assert.NotContains(t, second, "a")
}

func TestDecodeAttributesMalformed(t *testing.T) {
	got := decodeAttributes("{broken", testLogger())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDecodeAttributesNullLiteral(t *testing.T) {
	got := decodeAttributes("null", testLogger())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLazyStateContext(t *testing.T) {
	r := row("light.kitchen", "on", 100)
	r.ctxID = "ctx-1"
	r.ctxUserID = "user-1"
	ls := newLazyState(r, newAttrCache(testLogger()))

	ctx := ls.Context()
	assert.Equal(t, "ctx-1", ctx.ID)
	assert.Equal(t, "user-1", ctx.UserID)
	assert.Empty(t, ctx.ParentID)
	assert.Same(t, ctx, ls.Context())
}

func TestEntryVerboseOmitsEqualLastChanged(t *testing.T) {
	ts := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	e := Entry{
		EntityID:    "light.kitchen",
		State:       "on",
		Attributes:  map[string]any{},
		LastChanged: ts,
		LastUpdated: ts,
	}
	v := e.Verbose()
	assert.NotContains(t, v, "last_changed")
	assert.Equal(t, "2026-08-01T01:00:00Z", v["last_updated"])
}

func TestEntryVerboseDistinctLastChanged(t *testing.T) {
	updated := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	e := Entry{
		EntityID:    "light.kitchen",
		State:       "on",
		Attributes:  map[string]any{},
		LastChanged: updated.Add(-30 * time.Minute),
		LastUpdated: updated,
	}
	v := e.Verbose()
	// Verbose carries ISO 8601 strings; epoch numbers belong to the
	// compressed encoding.
	assert.Equal(t, "2026-08-01T01:00:00Z", v["last_updated"])
	assert.Equal(t, "2026-08-01T00:30:00Z", v["last_changed"])
}

func TestEntryCompressedKeys(t *testing.T) {
	updated := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	changed := updated.Add(-30 * time.Minute)
	e := Entry{
		EntityID:    "light.kitchen",
		State:       "on",
		Attributes:  map[string]any{"brightness": 128},
		LastChanged: changed,
		LastUpdated: updated,
	}
	c := e.Compressed()
	assert.Equal(t, "on", c["s"])
	assert.Equal(t, model.TS(updated), c["lu"])
	assert.Equal(t, model.TS(changed), c["lc"])
	assert.Equal(t, map[string]any{"brightness": 128}, c["a"])
}

func TestEntryCompactEncodings(t *testing.T) {
	ts := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	e := Entry{State: "off", LastChanged: ts, LastUpdated: ts, Compact: true}

	v := e.Verbose()
	assert.Equal(t, map[string]any{"state": "off", "last_changed": "2026-08-01T01:00:00Z"}, v)

	c := e.Compressed()
	assert.Equal(t, map[string]any{"s": "off", "lc": model.TS(ts)}, c)
}
