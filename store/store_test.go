package store

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestGet_FoundAndMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	s := &PostgresStore{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM kv_store WHERE key=$1`)).
		WithArgs("cart:s1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`[]`))

	got, err := s.Get("cart:s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "[]" {
		t.Fatalf("expected [], got %q", got)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM kv_store WHERE key=$1`)).
		WithArgs("cart:missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.Get("cart:missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGet_DBError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	s := &PostgresStore{DB: db}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM kv_store`)).
		WithArgs("k").
		WillReturnError(errors.New("conn reset"))

	if _, err := s.Get("k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestSet_Upsert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	s := &PostgresStore{DB: db}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO kv_store (key, value, updated_at)`)).
		WithArgs("cart:s1", `[{"base_id":"A"}]`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Set("cart:s1", `[{"base_id":"A"}]`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO kv_store`)).
		WithArgs("cart:s1", `[]`).
		WillReturnError(errors.New("disk full"))

	if err := s.Set("cart:s1", `[]`); err == nil {
		t.Fatalf("expected error to propagate")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRemove(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	s := &PostgresStore{DB: db}

	// absent key -> no rows affected, still no error
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kv_store WHERE key=$1`)).
		WithArgs("auth:s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Remove("auth:s1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrate(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	s := &PostgresStore{DB: db}

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS kv_store`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Migrate(`CREATE TABLE IF NOT EXISTS kv_store (key TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
