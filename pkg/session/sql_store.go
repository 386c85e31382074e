package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// SQLStore persists Session snapshots as a single JSON blob per row in a
// MySQL table, for deployments that already run MySQL for everything else
// and would rather not manage a second, file-based persistence path.
// Concurrency across replicas is handled by MySQL's own row locking; this
// store does no in-process locking of its own.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id VARCHAR(255) NOT NULL PRIMARY KEY,
	state_json MEDIUMTEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// NewSQLStore opens dsn (a go-sql-driver/mysql DSN) and ensures the
// sessions table exists.
func NewSQLStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("session sql store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session sql store: ping: %w", err)
	}
	if _, err := db.Exec(createSessionsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("session sql store: create table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Save upserts sess by id, overwriting the prior row's state.
func (s *SQLStore) Save(sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session sql store: marshal %s: %w", sess.ID, err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, state_json, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE state_json = VALUES(state_json), updated_at = VALUES(updated_at)`,
		sess.ID, data, sess.CreatedAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("session sql store: upsert %s: %w", sess.ID, err)
	}
	return nil
}

// Load reads a session by id.
func (s *SQLStore) Load(id string) (*Session, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT state_json FROM sessions WHERE id = ?`, id).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("session sql store: select %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session sql store: unmarshal %s: %w", id, err)
	}
	return &sess, nil
}

// Delete removes a session's row, if present.
func (s *SQLStore) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("session sql store: delete %s: %w", id, err)
	}
	return nil
}
