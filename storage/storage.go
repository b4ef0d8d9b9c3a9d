// Package storage persists OAuth credentials and pending login states.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates the file on disk could not be decoded.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
	// ErrExpired indicates a pending login state outlived its window.
	ErrExpired = errors.New("storage: expired")
)

// StorageError wraps storage errors with operation and entity context.
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("failed to %s %s: %v\n", storErr.Op, storErr.Entity, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("read", "write", "save", "delete", "consume").
	Op string
	// Entity is the record type ("credential", "state", "store").
	Entity string
	// ID is the record key if applicable.
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CredentialStore keeps the OAuth credential of the moderating account and
// the CSRF states of logins in progress. Implementations must be safe for
// concurrent use.
type CredentialStore interface {
	// SaveCredential inserts or replaces the credential for cred.Account.
	SaveCredential(ctx context.Context, cred *Credential) error
	// GetCredential returns the credential for account or ErrNotFound.
	GetCredential(ctx context.Context, account string) (*Credential, error)
	// DeleteCredential removes the credential for account. Deleting a
	// missing credential is not an error.
	DeleteCredential(ctx context.Context, account string) error

	// SavePendingState records a login state until it is consumed or expires.
	SavePendingState(ctx context.Context, state *PendingState) error
	// ConsumePendingState removes and returns a state. Unknown states yield
	// ErrNotFound and expired ones ErrExpired.
	ConsumePendingState(ctx context.Context, state string) (*PendingState, error)

	Close() error
}
