package record

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/hearth/internal/db"
	"github.com/roach88/hearth/internal/filters"
	"github.com/roach88/hearth/internal/meta"
	"github.com/roach88/hearth/internal/model"
)

// DefaultBatchSize is the buffered-event threshold that triggers an
// automatic flush.
const DefaultBatchSize = 1024

// Options configures a Writer.
type Options struct {
	// BatchSize is the buffer threshold for automatic flushing; <= 0 selects
	// DefaultBatchSize.
	BatchSize int

	// Filter drops excluded entities before they are buffered. Nil records
	// everything.
	Filter *filters.Filter

	// Cache capacities for the surrogate-id managers; <= 0 selects the
	// per-manager defaults.
	EntityIDCacheSize  int
	EventTypeCacheSize int

	Logger *slog.Logger
}

// Writer is the recorder's write half. Not safe for concurrent use; the
// recorder runs a single writer goroutine and everything else submits
// through it.
type Writer struct {
	store      *db.Store
	entities   *meta.EntityIDManager
	eventTypes *meta.EventTypeManager
	filter     *filters.Filter
	logger     *slog.Logger

	batchSize int
	states    []model.StateChangedEvent
	events    []model.Event

	// lastStateID tracks, per entity, the row id of its newest state so the
	// next row can reference it as old_state_id. Populated lazily from the
	// database the first time an entity is written in this process.
	lastStateID map[string]int64

	run db.RecorderRun
}

// NewWriter creates a writer over an already-open modern-era store.
func NewWriter(store *db.Store, opts Options) (*Writer, error) {
	if store.Era() != db.EraModern {
		return nil, fmt.Errorf("writer requires the modern schema, store is %s", store.Era())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Writer{
		store:       store,
		entities:    meta.NewEntityIDManager(opts.EntityIDCacheSize),
		eventTypes:  meta.NewEventTypeManager(opts.EventTypeCacheSize),
		filter:      opts.Filter,
		logger:      logger,
		batchSize:   batch,
		lastStateID: make(map[string]int64),
	}, nil
}

// EntityIDs returns the shared entity-id manager, for a query engine running
// against the same store.
func (w *Writer) EntityIDs() *meta.EntityIDManager { return w.entities }

// Start opens a recorder run. Must be called before the first flush.
func (w *Writer) Start(ctx context.Context) error {
	return w.StartAt(ctx, time.Now())
}

// StartAt opens a recorder run with an explicit start time. Used by replay
// and test harnesses that record historical state logs.
func (w *Writer) StartAt(ctx context.Context, start time.Time) error {
	run, err := w.store.StartRun(ctx, start)
	if err != nil {
		return err
	}
	w.run = run
	w.logger.Info("recorder run started", "run_uid", run.RunUID)
	return nil
}

// Close flushes the buffer and ends the run.
func (w *Writer) Close(ctx context.Context) error {
	if err := w.Flush(ctx); err != nil {
		return err
	}
	if w.run.RunID != 0 {
		if err := w.store.EndRun(ctx, w.run.RunID, time.Now()); err != nil {
			return err
		}
		w.run = db.RecorderRun{}
	}
	return nil
}

// RecordState buffers one state change, minting a context id if the event
// carries none. Filtered entities are dropped silently. The buffer flushes
// itself at the batch threshold.
func (w *Writer) RecordState(ctx context.Context, ev model.StateChangedEvent) error {
	if w.filter != nil && !w.filter.Matches(ev.EntityID) {
		return nil
	}
	if ev.Context.ID == "" {
		ev.Context.ID = uuid.Must(uuid.NewV7()).String()
	}
	w.states = append(w.states, ev)
	return w.maybeFlush(ctx)
}

// RecordEvent buffers one generic bus event.
func (w *Writer) RecordEvent(ctx context.Context, ev model.Event) error {
	if ev.Context.ID == "" {
		ev.Context.ID = uuid.Must(uuid.NewV7()).String()
	}
	w.events = append(w.events, ev)
	return w.maybeFlush(ctx)
}

func (w *Writer) maybeFlush(ctx context.Context) error {
	if len(w.states)+len(w.events) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered batch in one transaction. On success the pending
// surrogate ids are promoted into the committed caches; on any failure the
// transaction rolls back and the caches reset, because ids minted inside the
// failed transaction are invalid.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.states) == 0 && len(w.events) == 0 {
		return nil
	}

	tx, err := w.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	if err := w.flushTx(ctx, tx); err != nil {
		tx.Rollback()
		w.rollbackCaches()
		return err
	}
	if err := tx.Commit(); err != nil {
		w.rollbackCaches()
		return fmt.Errorf("commit batch: %w", err)
	}

	w.entities.PostCommitPending()
	w.eventTypes.PostCommitPending()
	w.logger.Debug("batch committed",
		"states", len(w.states), "events", len(w.events))
	w.states = w.states[:0]
	w.events = w.events[:0]
	return nil
}

// rollbackCaches discards every id minted inside the failed transaction:
// surrogate-id pending sets, committed caches, and the old-state chain map,
// all of which may now reference rows that were never committed.
func (w *Writer) rollbackCaches() {
	w.entities.Reset()
	w.eventTypes.Reset()
	clear(w.lastStateID)
}

func (w *Writer) flushTx(ctx context.Context, tx *sql.Tx) error {
	for _, ev := range w.states {
		if err := w.writeState(ctx, tx, ev); err != nil {
			return err
		}
	}
	for _, ev := range w.events {
		if err := w.writeEvent(ctx, tx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeState(ctx context.Context, tx *sql.Tx, ev model.StateChangedEvent) error {
	metaID, err := w.entities.GetOrCreate(ctx, tx, ev.EntityID)
	if err != nil {
		return err
	}

	var attrsID any
	if !ev.Removed {
		id, err := w.attributesID(ctx, tx, ev.Attributes)
		if err != nil {
			return err
		}
		attrsID = id
	}

	oldID, err := w.oldStateID(ctx, tx, ev.EntityID, metaID)
	if err != nil {
		return err
	}

	state := ev.State
	if ev.Removed {
		state = ""
	}
	var changed any
	if !ev.LastChanged.IsZero() && !ev.LastChanged.Equal(ev.LastUpdated) {
		changed = model.TS(ev.LastChanged)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO states
			(metadata_id, state, last_updated_ts, last_changed_ts,
			 old_state_id, attributes_id,
			 context_id, context_user_id, context_parent_id, origin_idx)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, metaID, state, model.TS(ev.LastUpdated), changed, oldID, attrsID,
		ev.Context.ID, nullable(ev.Context.UserID), nullable(ev.Context.ParentID))
	if err != nil {
		return fmt.Errorf("insert state for %s: %w", ev.EntityID, err)
	}
	stateID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert state for %s: last insert id: %w", ev.EntityID, err)
	}
	w.lastStateID[ev.EntityID] = stateID
	return nil
}

// attributesID resolves an attribute payload to its shared blob, inserting
// on first sight. The hash narrows candidates; equality is decided on the
// canonical bytes, so hash collisions cost one extra row comparison, never
// a wrong match.
func (w *Writer) attributesID(ctx context.Context, tx *sql.Tx, attrs map[string]any) (int64, error) {
	hash, canonical, err := model.AttributesHash(attrs)
	if err != nil {
		return 0, err
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT attributes_id, shared_attrs FROM state_attributes WHERE hash = ?",
		int64(hash))
	if err != nil {
		return 0, fmt.Errorf("lookup attributes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var stored string
		if err := rows.Scan(&id, &stored); err != nil {
			return 0, fmt.Errorf("scan attributes: %w", err)
		}
		if stored == string(canonical) {
			return id, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate attributes: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO state_attributes (hash, shared_attrs) VALUES (?, ?)",
		int64(hash), string(canonical))
	if err != nil {
		return 0, fmt.Errorf("insert attributes: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert attributes: last insert id: %w", err)
	}
	return id, nil
}

// oldStateID returns the previous row id for the entity, consulting the
// in-process map first and the database once per entity per process.
func (w *Writer) oldStateID(ctx context.Context, tx *sql.Tx, entityID string, metaID int64) (any, error) {
	if id, ok := w.lastStateID[entityID]; ok {
		return id, nil
	}
	var id int64
	err := tx.QueryRowContext(ctx, `
		SELECT state_id FROM states
		WHERE metadata_id = ?
		ORDER BY state_id DESC
		LIMIT 1
	`, metaID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("previous state for %s: %w", entityID, err)
	}
	w.lastStateID[entityID] = id
	return id, nil
}

func (w *Writer) writeEvent(ctx context.Context, tx *sql.Tx, ev model.Event) error {
	typeID, err := w.eventTypes.GetOrCreate(ctx, tx, ev.Type)
	if err != nil {
		return err
	}

	var dataID any
	if len(ev.Data) > 0 {
		id, err := w.eventDataID(ctx, tx, ev.Data)
		if err != nil {
			return err
		}
		dataID = id
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
			(event_type_id, time_fired_ts, data_id,
			 context_id, context_user_id, context_parent_id, origin_idx)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, typeID, model.TS(ev.TimeFired), dataID,
		ev.Context.ID, nullable(ev.Context.UserID), nullable(ev.Context.ParentID))
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.Type, err)
	}
	return nil
}

func (w *Writer) eventDataID(ctx context.Context, tx *sql.Tx, data map[string]any) (int64, error) {
	hash, canonical, err := model.EventDataHash(data)
	if err != nil {
		return 0, err
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT data_id, shared_data FROM event_data WHERE hash = ?",
		int64(hash))
	if err != nil {
		return 0, fmt.Errorf("lookup event data: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var stored string
		if err := rows.Scan(&id, &stored); err != nil {
			return 0, fmt.Errorf("scan event data: %w", err)
		}
		if stored == string(canonical) {
			return id, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate event data: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO event_data (hash, shared_data) VALUES (?, ?)",
		int64(hash), string(canonical))
	if err != nil {
		return 0, fmt.Errorf("insert event data: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert event data: last insert id: %w", err)
	}
	return id, nil
}

// RenameEntity forwards to the entity-id manager inside its own transaction
// and drops the stale old_state_id chain entry.
func (w *Writer) RenameEntity(ctx context.Context, oldEntityID, newEntityID string) error {
	tx, err := w.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rename: %w", err)
	}
	if err := w.entities.Rename(ctx, tx, oldEntityID, newEntityID); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rename: %w", err)
	}
	if id, ok := w.lastStateID[oldEntityID]; ok {
		delete(w.lastStateID, oldEntityID)
		w.lastStateID[newEntityID] = id
	}
	return nil
}

// EvictPurged drops cache entries for entities a purge job removed.
func (w *Writer) EvictPurged(entityIDs []string) {
	w.entities.EvictPurged(entityIDs)
	for _, id := range entityIDs {
		delete(w.lastStateID, id)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
