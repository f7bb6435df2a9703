// Package lutstore caches built sonar LUTs in sqlite so a restart with an
// unchanged sonar configuration can skip the geometry build.
package lutstore

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tidewise/drivers-sonar-base/internal/monitoring"
	"github.com/tidewise/drivers-sonar-base/internal/sonar"
	"github.com/tidewise/drivers-sonar-base/internal/sonar/lut"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by lookups by id when no row matches.
var ErrNotFound = errors.New("lut not found")

// Store is a sqlite-backed LUT cache. It implements render.Store.
type Store struct {
	db   *sql.DB
	path string
}

// Entry summarises one stored LUT.
type Entry struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	WindowSize  int       `json:"window_size"`
	BeamCount   int       `json:"beam_count"`
	BinCount    int       `json:"bin_count"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Assignments int       `json:"assignments"`
	SizeBytes   int       `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// Open opens (creating if needed) the sqlite database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for admin tooling.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// m is not closed: that would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Fingerprint identifies a (configuration, window size) pair. Equal
// configurations always produce the same fingerprint.
func Fingerprint(cfg sonar.Config, windowSize int) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	h := sha256.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(windowSize)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Save stores l, replacing any LUT with the same fingerprint, and returns
// the id of the new row.
func (s *Store) Save(l *lut.LUT) (string, error) {
	cfg := l.Config()
	fp, err := Fingerprint(cfg, l.WindowSize())
	if err != nil {
		return "", err
	}
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	blob, err := encodeSnapshot(l.Snapshot())
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	now := time.Now().UnixNano()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sonar_luts WHERE fingerprint = ?`, fp); err != nil {
		return "", fmt.Errorf("delete previous lut: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO sonar_luts (
			lut_id, fingerprint, config_json, window_size, beam_count, bin_count,
			width, height, assignments, snapshot, created_unix_nanos, last_used_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fp, string(configJSON), l.WindowSize(), cfg.BeamCount, cfg.BinCount,
		l.Width(), l.Height(), l.PixelCount(), blob, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert lut: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	monitoring.Logf("[LUTStore] Saved LUT %s: beams=%d bins=%d raster=%dx%d blob=%d bytes",
		id, cfg.BeamCount, cfg.BinCount, l.Width(), l.Height(), len(blob))
	return id, nil
}

// Load returns the stored LUT for cfg and windowSize, or (nil, nil) when
// none is stored.
func (s *Store) Load(cfg sonar.Config, windowSize int) (*lut.LUT, error) {
	fp, err := Fingerprint(cfg, windowSize)
	if err != nil {
		return nil, err
	}

	var id string
	var blob []byte
	err = s.db.QueryRow(`SELECT lut_id, snapshot FROM sonar_luts WHERE fingerprint = ?`, fp).Scan(&id, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lut: %w", err)
	}

	snap, err := decodeSnapshot(blob)
	if err != nil {
		return nil, fmt.Errorf("lut %s: %w", id, err)
	}
	l, err := lut.FromSnapshot(cfg, windowSize, snap)
	if err != nil {
		return nil, fmt.Errorf("lut %s: %w", id, err)
	}
	if !l.Matches(cfg, windowSize) {
		return nil, nil
	}

	if _, err := s.db.Exec(`UPDATE sonar_luts SET last_used_unix_nanos = ? WHERE lut_id = ?`,
		time.Now().UnixNano(), id); err != nil {
		monitoring.Logf("[LUTStore] Failed to touch LUT %s: %v", id, err)
	}
	return l, nil
}

// Config returns the sonar configuration stored with id.
func (s *Store) Config(id string) (sonar.Config, int, error) {
	var configJSON string
	var windowSize int
	err := s.db.QueryRow(`SELECT config_json, window_size FROM sonar_luts WHERE lut_id = ?`, id).
		Scan(&configJSON, &windowSize)
	if errors.Is(err, sql.ErrNoRows) {
		return sonar.Config{}, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return sonar.Config{}, 0, fmt.Errorf("query lut: %w", err)
	}
	var cfg sonar.Config
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return sonar.Config{}, 0, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, windowSize, nil
}

// List returns all stored LUTs, most recently used first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT lut_id, fingerprint, window_size, beam_count, bin_count, width, height,
			assignments, length(snapshot), created_unix_nanos, last_used_unix_nanos
		FROM sonar_luts
		ORDER BY last_used_unix_nanos DESC, created_unix_nanos DESC`)
	if err != nil {
		return nil, fmt.Errorf("query luts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created, lastUsed int64
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.WindowSize, &e.BeamCount, &e.BinCount,
			&e.Width, &e.Height, &e.Assignments, &e.SizeBytes, &created, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan lut: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		e.LastUsedAt = time.Unix(0, lastUsed)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes all but the keep most recently used LUTs and returns the
// number of rows removed.
func (s *Store) Prune(keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be non-negative, got %d", keep)
	}
	res, err := s.db.Exec(`
		DELETE FROM sonar_luts WHERE lut_id NOT IN (
			SELECT lut_id FROM sonar_luts
			ORDER BY last_used_unix_nanos DESC, created_unix_nanos DESC
			LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune luts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		monitoring.Logf("[LUTStore] Pruned %d LUTs", n)
	}
	return n, nil
}

func encodeSnapshot(snap lut.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(snap); err != nil {
		return nil, fmt.Errorf("gob encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(blob []byte) (lut.Snapshot, error) {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return lut.Snapshot{}, fmt.Errorf("%w: %v", lut.ErrCorruptSnapshot, err)
	}
	defer gz.Close()
	var snap lut.Snapshot
	if err := gob.NewDecoder(gz).Decode(&snap); err != nil {
		return lut.Snapshot{}, fmt.Errorf("%w: %v", lut.ErrCorruptSnapshot, err)
	}
	return snap, nil
}
