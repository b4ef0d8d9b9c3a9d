package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"
)

const (
	schemaVersion = "1.0"
	lockTimeout   = 5 * time.Second
)

// JSONStore implements CredentialStore with a single JSON file guarded by
// a FileLock for the lifetime of the store. The file is written with mode
// 0600 since it holds refresh tokens.
type JSONStore struct {
	path string
	lock *FileLock
	data *storeData
	mu   sync.RWMutex
	now  func() time.Time
}

type storeData struct {
	Version     string                   `json:"version"`
	UpdatedAt   time.Time                `json:"updated_at"`
	Credentials map[string]*Credential   `json:"credentials"`
	States      map[string]*PendingState `json:"pending_states"`
}

// NewJSONStore opens the store at path, creating an empty one if the file
// does not exist.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		lock: NewFileLock(path),
		now:  time.Now,
	}

	if err := s.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := s.load(); err != nil {
		s.lock.Unlock()
		return nil, err
	}

	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.data = newStoreData()
			// Save immediately to catch permission errors early
			return s.save()
		}
		return &StorageError{Op: "read", Entity: "store", Err: err}
	}

	s.data = &storeData{}
	if err := json.Unmarshal(data, s.data); err != nil {
		return &StorageError{Op: "read", Entity: "store", Err: ErrStorageCorrupt}
	}
	if s.data.Credentials == nil {
		s.data.Credentials = make(map[string]*Credential)
	}
	if s.data.States == nil {
		s.data.States = make(map[string]*PendingState)
	}
	return nil
}

func (s *JSONStore) save() error {
	s.data.UpdatedAt = s.now()

	writer, err := NewAtomicWriter(s.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}
	return nil
}

// Close releases the file lock.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}

func newStoreData() *storeData {
	return &storeData{
		Version:     schemaVersion,
		Credentials: make(map[string]*Credential),
		States:      make(map[string]*PendingState),
	}
}

func (s *JSONStore) SaveCredential(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.AccessToken == "" {
		return &StorageError{Op: "save", Entity: "credential", Err: ErrInvalidInput}
	}
	if cred.Account == "" {
		cred.Account = DefaultAccount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.data.Credentials[cred.Account]; ok {
		cred.CreatedAt = existing.CreatedAt
		// Refresh responses usually omit the refresh token.
		if cred.RefreshToken == "" {
			cred.RefreshToken = existing.RefreshToken
		}
	} else {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	stored := *cred
	s.data.Credentials[cred.Account] = &stored
	return s.save()
}

func (s *JSONStore) GetCredential(ctx context.Context, account string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.data.Credentials[account]
	if !ok {
		return nil, &StorageError{Op: "read", Entity: "credential", ID: account, Err: ErrNotFound}
	}
	out := *cred
	return &out, nil
}

func (s *JSONStore) DeleteCredential(ctx context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Credentials[account]; !ok {
		return nil
	}
	delete(s.data.Credentials, account)
	return s.save()
}

func (s *JSONStore) SavePendingState(ctx context.Context, state *PendingState) error {
	if state == nil || state.State == "" || state.ExpiresAt.IsZero() {
		return &StorageError{Op: "save", Entity: "state", Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneStates()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = s.now()
	}
	stored := *state
	s.data.States[state.State] = &stored
	return s.save()
}

func (s *JSONStore) ConsumePendingState(ctx context.Context, state string) (*PendingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.data.States[state]
	if !ok {
		return nil, &StorageError{Op: "consume", Entity: "state", Err: ErrNotFound}
	}
	delete(s.data.States, state)
	if err := s.save(); err != nil {
		return nil, err
	}
	if !s.now().Before(ps.ExpiresAt) {
		return nil, &StorageError{Op: "consume", Entity: "state", Err: ErrExpired}
	}
	return ps, nil
}

// pruneStates drops expired login states. Callers hold mu.
func (s *JSONStore) pruneStates() {
	now := s.now()
	for k, ps := range s.data.States {
		if !now.Before(ps.ExpiresAt) {
			delete(s.data.States, k)
		}
	}
}
