package store

import (
	"database/sql"
	"errors"
	"sync"

	_ "github.com/lib/pq"
)

// PostgresStore is a Store backed by the kv_store table and has in-process locks
type PostgresStore struct {
	DB *sql.DB

	// per-key mutexes so goroutines in this process do not interleave
	// writes to the same key. Keys are store key -> *sync.Mutex
	locks sync.Map
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	DB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := DB.Ping(); err != nil {
		DB.Close()
		return nil, err
	}
	return &PostgresStore{DB: DB}, nil
}

// Migrate runs the schema statements against the database.
func (s *PostgresStore) Migrate(schema string) error {
	_, err := s.DB.Exec(schema)
	return err
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

// helper: acquire per-key lock (process-local). Returns unlock func.
func (s *PostgresStore) lockForKey(key string) func() {
	if v, ok := s.locks.Load(key); ok {
		m := v.(*sync.Mutex)
		m.Lock()
		return m.Unlock
	}

	m := &sync.Mutex{}
	actual, _ := s.locks.LoadOrStore(key, m)
	mtx := actual.(*sync.Mutex)
	mtx.Lock()
	return mtx.Unlock
}

func (s *PostgresStore) Get(key string) (string, error) {
	var value string
	err := s.DB.QueryRow(`SELECT value FROM kv_store WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set upserts the value; the last writer for a key wins.
func (s *PostgresStore) Set(key, value string) error {
	unlock := s.lockForKey(key)
	defer unlock()

	_, err := s.DB.Exec(`
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	return err
}

// Remove deletes the key. Removing an absent key is not an error.
func (s *PostgresStore) Remove(key string) error {
	unlock := s.lockForKey(key)
	defer unlock()

	_, err := s.DB.Exec(`DELETE FROM kv_store WHERE key=$1`, key)
	return err
}
