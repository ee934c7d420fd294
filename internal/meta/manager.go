package meta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/hearth/internal/db"
)

// Default cache capacities. Sized to comfortably hold the working set of a
// large installation; eviction only costs an extra SELECT, never correctness.
const (
	DefaultEntityIDCacheSize  = 8192
	DefaultEventTypeCacheSize = 2048
)

// ErrRenameCollision is returned when an entity rename targets an id that
// already has its own mapping. Renames fail closed: silently keeping both
// mappings would orphan or duplicate history.
var ErrRenameCollision = errors.New("rename target already has a metadata mapping")

// PendingRecord is a surrogate-table row inserted inside an in-flight
// transaction. The ID is assigned at insert but has no meaning outside the
// writer's own transaction until commit.
type PendingRecord struct {
	Key string
	ID  int64
}

// idManager implements the shared cache/pending machinery; the two exported
// managers differ only in table and column names.
type idManager struct {
	table   string
	idCol   string
	keyCol  string
	cache   *lruCache
	pending map[string]*PendingRecord
}

func newIDManager(table, idCol, keyCol string, cacheSize int) idManager {
	return idManager{
		table:   table,
		idCol:   idCol,
		keyCol:  keyCol,
		cache:   newLRUCache(cacheSize),
		pending: make(map[string]*PendingRecord),
	}
}

// Get resolves one key to its committed surrogate id. A miss triggers a
// single database lookup and repopulates the cache. ok=false means the key
// has genuinely never been seen; that is a normal outcome, not an error.
func (m *idManager) Get(ctx context.Context, exec db.Executor, key string) (int64, bool, error) {
	ids, err := m.GetMany(ctx, exec, []string{key})
	if err != nil {
		return 0, false, err
	}
	id, ok := ids[key]
	return id, ok, nil
}

// GetMany resolves a batch of keys. Cache hits are served locally; all
// misses go to the database in exactly one SELECT. Keys absent from the
// result were never seen. Never errors merely because keys are unknown.
func (m *idManager) GetMany(ctx context.Context, exec db.Executor, keys []string) (map[string]int64, error) {
	results := make(map[string]int64, len(keys))
	var misses []string
	for _, key := range keys {
		if id, ok := m.cache.get(key); ok {
			results[key] = id
		} else {
			misses = append(misses, key)
		}
	}
	if len(misses) == 0 {
		return results, nil
	}

	placeholders, args := inClause(misses)
	query := fmt.Sprintf(
		"SELECT %s, %s FROM %s WHERE %s IN (%s)",
		m.idCol, m.keyCol, m.table, m.keyCol, placeholders,
	)
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", m.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("scan %s: %w", m.table, err)
		}
		results[key] = id
		m.cache.put(key, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", m.table, err)
	}
	return results, nil
}

// AddPending registers a row inserted in the current uncommitted batch, so a
// second write for the same key inside that batch resolves to the in-flight
// record instead of inserting a duplicate.
func (m *idManager) AddPending(rec *PendingRecord) {
	m.pending[rec.Key] = rec
}

// GetPending looks up the pending set only.
func (m *idManager) GetPending(key string) (*PendingRecord, bool) {
	rec, ok := m.pending[key]
	return rec, ok
}

// PostCommitPending promotes every pending entry into the committed cache
// and clears the pending set. Call exactly once, immediately after a
// successful commit. Calling before commit risks promoting ids a rollback
// invalidates; skipping the call makes every later write re-query or
// re-insert.
func (m *idManager) PostCommitPending() {
	for key, rec := range m.pending {
		m.cache.put(key, rec.ID)
	}
	clear(m.pending)
}

// Reset clears both cache and pending. Used after a rollback or when the
// underlying database identity changes.
func (m *idManager) Reset() {
	m.cache.reset()
	clear(m.pending)
}

// EvictPurged drops cache entries for keys a purge job deleted, so a future
// write cannot reuse a since-deleted id against freshly purged rows.
func (m *idManager) EvictPurged(keys []string) {
	for _, key := range keys {
		m.cache.remove(key)
		delete(m.pending, key)
	}
}

// CacheLen reports the committed cache size; used by tests and diagnostics.
func (m *idManager) CacheLen() int {
	return m.cache.len()
}

// insert creates a new surrogate row inside the caller's transaction and
// registers it as pending.
func (m *idManager) insert(ctx context.Context, exec db.Executor, key string) (*PendingRecord, error) {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", m.table, m.keyCol)
	result, err := exec.ExecContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", m.table, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert %s: last insert id: %w", m.table, err)
	}
	rec := &PendingRecord{Key: key, ID: id}
	m.AddPending(rec)
	return rec, nil
}

// GetOrCreate resolves a key, checking committed cache and database, then
// the pending set, then inserting. Must run inside the writer's transaction.
func (m *idManager) GetOrCreate(ctx context.Context, exec db.Executor, key string) (int64, error) {
	if id, ok, err := m.Get(ctx, exec, key); err != nil {
		return 0, err
	} else if ok {
		return id, nil
	}
	if rec, ok := m.GetPending(key); ok {
		return rec.ID, nil
	}
	rec, err := m.insert(ctx, exec, key)
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// inClause builds "?,?,?" placeholders and the matching args slice. Empty
// input yields an empty clause rather than panicking on a negative capacity.
func inClause(keys []string) (string, []any) {
	if len(keys) == 0 {
		return "", nil
	}
	placeholders := make([]byte, 0, len(keys)*2-1)
	args := make([]any, len(keys))
	for i, key := range keys {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = key
	}
	return string(placeholders), args
}

// EntityIDManager owns the states_meta table: entity_id -> metadata_id.
type EntityIDManager struct {
	idManager
}

// NewEntityIDManager creates a manager with the given committed-cache
// capacity; size <= 0 selects the default.
func NewEntityIDManager(cacheSize int) *EntityIDManager {
	if cacheSize <= 0 {
		cacheSize = DefaultEntityIDCacheSize
	}
	return &EntityIDManager{
		idManager: newIDManager("states_meta", "metadata_id", "entity_id", cacheSize),
	}
}

// Rename points an existing mapping at a new entity id. Fails closed with
// ErrRenameCollision when the target already has a mapping of its own; the
// caller decides whether to merge or orphan, we never guess.
func (m *EntityIDManager) Rename(ctx context.Context, exec db.Executor, oldEntityID, newEntityID string) error {
	if _, ok, err := m.Get(ctx, exec, newEntityID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("rename %q to %q: %w", oldEntityID, newEntityID, ErrRenameCollision)
	}

	result, err := exec.ExecContext(ctx,
		"UPDATE states_meta SET entity_id = ? WHERE entity_id = ?",
		newEntityID, oldEntityID,
	)
	if err != nil {
		return fmt.Errorf("rename %q: %w", oldEntityID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename %q: rows affected: %w", oldEntityID, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	m.cache.remove(oldEntityID)
	delete(m.pending, oldEntityID)
	return nil
}

// EventTypeManager owns the event_types table: event_type -> event_type_id.
type EventTypeManager struct {
	idManager
}

// NewEventTypeManager creates a manager with the given committed-cache
// capacity; size <= 0 selects the default.
func NewEventTypeManager(cacheSize int) *EventTypeManager {
	if cacheSize <= 0 {
		cacheSize = DefaultEventTypeCacheSize
	}
	return &EventTypeManager{
		idManager: newIDManager("event_types", "event_type_id", "event_type", cacheSize),
	}
}
