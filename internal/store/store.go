package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/canopy-project/canopy/internal/canopyerr"
)

// SQLiteStore is the default Store implementation: one SQLite database per
// repo, guarded by an advisory file lock during open, with WAL journaling
// and an in-memory symbol cache mirrored from the nodes table.
type SQLiteStore struct {
	// mu serializes all access to db. The Store is not built for
	// concurrent writers; cross-connection reads would need additional
	// coordination this implementation doesn't attempt. Concurrent
	// query/expand on the same repo are expected to serialize here (§5).
	mu sync.Mutex

	db   *sql.DB
	path string

	lock *flock.Flock

	cache *symbolCache

	previewBytes int
	closed       bool

	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// Config carries the store-relevant subset of canopyconfig.Config.
type Config struct {
	PreviewBytes int
	Logger       *slog.Logger
}

// Open opens (creating if necessary) the store for a repo rooted at
// repoRoot, at "<repoRoot>/.canopy/index.db". It acquires an advisory lock
// for the duration of schema validation to guard against a concurrent
// process racing the same initialization.
func Open(repoRoot string, cfg Config) (*SQLiteStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Join(repoRoot, ".canopy")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	path := filepath.Join(dir, "index.db")

	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	defer fl.Unlock()

	if err := recoverFromCorruption(path, logger); err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	previewBytes := cfg.PreviewBytes
	if previewBytes <= 0 {
		previewBytes = 200
	}

	s := &SQLiteStore{
		db:           db,
		path:         path,
		lock:         fl,
		previewBytes: previewBytes,
		logger:       logger,
	}

	cache, err := loadSymbolCache(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load symbol cache: %w", err)
	}
	s.cache = cache

	return s, nil
}

// recoverFromCorruption validates an existing database file and clears it
// (along with its WAL side-files) if sqlite reports corruption. Schema
// version mismatches are a distinct, non-corrupt case and are never
// auto-cleared here — they fail in ensureSchema instead.
func recoverFromCorruption(path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open(driverName, path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for integrity check: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result == "ok" {
		return nil
	}

	logger.Warn("store index corrupted, clearing",
		slog.String("path", path), slog.String("detail", result))

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("remove corrupt store file %s: %w", p, rmErr)
		}
	}
	return nil
}

// ensureSchema installs the schema on a fresh database, or fails with
// schema_version_mismatch if an existing database was built by an
// incompatible version. Implementers must refuse to silently migrate.
func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var stored int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(schemaDDL); err != nil {
			return fmt.Errorf("install schema: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case stored != CurrentSchemaVersion:
		return canopyerr.SchemaVersionMismatch(stored, CurrentSchemaVersion)
	default:
		return nil
	}
}

// Close checkpoints the WAL and closes the underlying connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func nowUnix() int64 {
	return time.Now().Unix()
}
