// Package kvstore abstracts the persisted key-value settings store used for
// process-wide state (current snapshot filename, content signature). All
// mutation of that state goes through the dataset lifecycle manager.
package kvstore

import "context"

// Store is a minimal persisted string key-value store. Get returns "" with a
// nil error for absent keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
