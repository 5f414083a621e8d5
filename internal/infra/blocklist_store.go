package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/pomo_mon/internal/domain"
	"github.com/eliteGoblin/focusd/pomo_mon/internal/policy"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const blocklistDBName = "blocklist.db"

// EncryptedBlocklist implements domain.BlocklistStore using a SQLCipher
// encrypted SQLite database, so the list is not a plain file to edit mid-session.
type EncryptedBlocklist struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewEncryptedBlocklist opens (or creates) the encrypted blocklist database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedBlocklist(dataDir string, key []byte) (*EncryptedBlocklist, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, blocklistDBName)
	keyHex := hex.EncodeToString(key)

	// The daemon and CLI share the file; busy_timeout covers short write overlaps
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedBlocklist{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}

	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// OpenBlocklist resolves the key (KeyEnv, else a key file created in dataDir
// on first use) and opens the store.
func OpenBlocklist(dataDir string) (*EncryptedBlocklist, error) {
	key, err := EnsureKey(KeyProviderFor(dataDir))
	if err != nil {
		return nil, err
	}
	return NewEncryptedBlocklist(dataDir, key)
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedBlocklist) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocked_apps (
		name TEXT PRIMARY KEY,
		added_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		pid INTEGER NOT NULL,
		killed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kills_name ON kills(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add inserts a blocked app. Names are normalized; protected names are refused.
func (s *EncryptedBlocklist) Add(name string) error {
	n, err := policy.Validate(name)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR IGNORE INTO blocked_apps (name, added_at) VALUES (?, ?)`,
		n, s.now().Unix())
	return err
}

// Remove deletes a blocked app.
func (s *EncryptedBlocklist) Remove(name string) error {
	_, err := s.db.Exec(`DELETE FROM blocked_apps WHERE name = ?`, policy.Normalize(name))
	return err
}

// List returns all blocked apps with their kill counts, ordered by name.
func (s *EncryptedBlocklist) List() ([]domain.BlockedApp, error) {
	rows, err := s.db.Query(`
		SELECT b.name, b.added_at, COUNT(k.id)
		FROM blocked_apps b
		LEFT JOIN kills k ON k.name = b.name
		GROUP BY b.name, b.added_at
		ORDER BY b.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apps := make([]domain.BlockedApp, 0)
	for rows.Next() {
		var (
			app     domain.BlockedApp
			addedAt int64
		)
		if err := rows.Scan(&app.Name, &addedAt, &app.KillCount); err != nil {
			return nil, err
		}
		app.AddedAt = time.Unix(addedAt, 0)
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// RecordKill stores one enforcement kill.
func (s *EncryptedBlocklist) RecordKill(name string, pid int, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO kills (name, pid, killed_at) VALUES (?, ?, ?)`,
		policy.Normalize(name), pid, at.Unix())
	return err
}

// GetPath returns the database file path.
func (s *EncryptedBlocklist) GetPath() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedBlocklist) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedBlocklist implements domain.BlocklistStore.
var _ domain.BlocklistStore = (*EncryptedBlocklist)(nil)
