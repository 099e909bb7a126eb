package store

import "errors"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("key not found")

// Store is a string-keyed durable store used to recover session state
// (carts, credentials) across restarts.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error

	Close() error
}
