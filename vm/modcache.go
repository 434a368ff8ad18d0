package vm

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ---------------------------------------------------------------------------
// ModuleCache: content-addressed store for compiled modules
// ---------------------------------------------------------------------------

// ModuleCache indexes serialized compiled modules by the SHA-256 of
// their wire bytes and persists them in a SQLite database, so repeated
// runs (and other VMs on the same machine) skip recompilation. Each
// cache session is tagged with a fresh id for diagnostics.
type ModuleCache struct {
	db        *sql.DB
	sessionID string
}

// ModuleCacheEntry is one stored module.
type ModuleCacheEntry struct {
	Hash    [32]byte
	Name    string
	Bytes   []byte
	Session string
	Stored  time.Time
}

const moduleCacheSchema = `
CREATE TABLE IF NOT EXISTS modules (
	hash    BLOB PRIMARY KEY,
	name    TEXT NOT NULL,
	bytes   BLOB NOT NULL,
	session TEXT NOT NULL,
	stored  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS modules_by_name ON modules(name);
`

// OpenModuleCache opens (creating if necessary) the cache database at
// path. Use ":memory:" for an ephemeral cache.
func OpenModuleCache(path string) (*ModuleCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("modcache: open %s: %w", path, err)
	}
	if _, err := db.Exec(moduleCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("modcache: init schema: %w", err)
	}
	return &ModuleCache{
		db:        db,
		sessionID: uuid.NewString(),
	}, nil
}

// Close releases the database handle.
func (c *ModuleCache) Close() error { return c.db.Close() }

// SessionID returns the id recorded with entries stored by this cache
// handle.
func (c *ModuleCache) SessionID() string { return c.sessionID }

// HashModule is the cache key function: SHA-256 over the wire bytes.
func HashModule(wireBytes []byte) [32]byte { return sha256.Sum256(wireBytes) }

// Put stores a serialized module under its content hash. Storing the
// same bytes twice is a no-op.
func (c *ModuleCache) Put(name string, wireBytes []byte) ([32]byte, error) {
	hash := HashModule(wireBytes)
	_, err := c.db.Exec(
		`INSERT OR IGNORE INTO modules (hash, name, bytes, session, stored) VALUES (?, ?, ?, ?, ?)`,
		hash[:], name, wireBytes, c.sessionID, time.Now().Unix())
	if err != nil {
		return hash, fmt.Errorf("modcache: put %s: %w", name, err)
	}
	return hash, nil
}

// Get fetches a module's wire bytes by hash.
func (c *ModuleCache) Get(hash [32]byte) ([]byte, bool, error) {
	var bytes []byte
	err := c.db.QueryRow(`SELECT bytes FROM modules WHERE hash = ?`, hash[:]).Scan(&bytes)
	switch {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("modcache: get: %w", err)
	}
	return bytes, true, nil
}

// GetByName fetches the most recently stored module with the given
// name.
func (c *ModuleCache) GetByName(name string) (*ModuleCacheEntry, bool, error) {
	e := &ModuleCacheEntry{Name: name}
	var hash []byte
	var stored int64
	err := c.db.QueryRow(
		`SELECT hash, bytes, session, stored FROM modules WHERE name = ? ORDER BY stored DESC LIMIT 1`,
		name).Scan(&hash, &e.Bytes, &e.Session, &stored)
	switch {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("modcache: get %s: %w", name, err)
	}
	copy(e.Hash[:], hash)
	e.Stored = time.Unix(stored, 0)
	return e, true, nil
}

// Sweep removes entries stored before cutoff and reports how many went
// away.
func (c *ModuleCache) Sweep(cutoff time.Time) (int64, error) {
	res, err := c.db.Exec(`DELETE FROM modules WHERE stored < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("modcache: sweep: %w", err)
	}
	return res.RowsAffected()
}
