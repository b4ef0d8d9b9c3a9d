package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *JSONStore {
	t.Helper()
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewJSONStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	defer store.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("store file was not created: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o600 {
		t.Errorf("store file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestJSONStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewJSONStore(path)
	if !errors.Is(err, ErrStorageCorrupt) {
		t.Errorf("NewJSONStore() error = %v, want ErrStorageCorrupt", err)
	}
}

func TestJSONStore_CredentialRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	cred := &Credential{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       expiry,
		ChannelID:    "UC123",
	}
	if err := store.SaveCredential(ctx, cred); err != nil {
		t.Fatalf("SaveCredential() error = %v", err)
	}
	if cred.Account != DefaultAccount {
		t.Errorf("Account = %q, want %q", cred.Account, DefaultAccount)
	}
	store.Close()

	store2, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore() reopen error = %v", err)
	}
	defer store2.Close()

	got, err := store2.GetCredential(ctx, DefaultAccount)
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if got.RefreshToken != "refresh-1" || got.ChannelID != "UC123" {
		t.Errorf("GetCredential() = %+v", got)
	}
	if !got.Expiry.Equal(expiry) {
		t.Errorf("Expiry = %v, want %v", got.Expiry, expiry)
	}
}

func TestJSONStore_SaveKeepsRefreshToken(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveCredential(ctx, &Credential{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatal(err)
	}
	first, _ := store.GetCredential(ctx, DefaultAccount)

	if err := store.SaveCredential(ctx, &Credential{AccessToken: "a2"}); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetCredential(ctx, DefaultAccount)
	if err != nil {
		t.Fatal(err)
	}
	if got.AccessToken != "a2" || got.RefreshToken != "r1" {
		t.Errorf("GetCredential() = %+v, want access a2 refresh r1", got)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on update")
	}
}

func TestJSONStore_SaveCredentialInvalid(t *testing.T) {
	store := newTestStore(t)
	err := store.SaveCredential(context.Background(), &Credential{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("SaveCredential() error = %v, want ErrInvalidInput", err)
	}
}

func TestJSONStore_DeleteCredential(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveCredential(ctx, &Credential{AccessToken: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteCredential(ctx, DefaultAccount); err != nil {
		t.Fatalf("DeleteCredential() error = %v", err)
	}
	if _, err := store.GetCredential(ctx, DefaultAccount); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCredential() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteCredential(ctx, DefaultAccount); err != nil {
		t.Errorf("DeleteCredential() twice error = %v", err)
	}
}

func TestJSONStore_PendingStates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.SavePendingState(ctx, &PendingState{State: "s1", ExpiresAt: now.Add(10 * time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := store.SavePendingState(ctx, &PendingState{State: "s2", ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}

	got, err := store.ConsumePendingState(ctx, "s1")
	if err != nil {
		t.Fatalf("ConsumePendingState() error = %v", err)
	}
	if got.State != "s1" {
		t.Errorf("ConsumePendingState() state = %q, want s1", got.State)
	}
	if _, err := store.ConsumePendingState(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second ConsumePendingState() error = %v, want ErrNotFound", err)
	}

	now = now.Add(5 * time.Minute)
	if _, err := store.ConsumePendingState(ctx, "s2"); !errors.Is(err, ErrExpired) {
		t.Errorf("expired ConsumePendingState() error = %v, want ErrExpired", err)
	}
}

func TestFileLock_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	first := NewFileLock(path)
	if err := first.Lock(time.Second); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	second := NewFileLock(path)
	if err := second.Lock(50 * time.Millisecond); !errors.Is(err, ErrLockTimeout) {
		t.Errorf("second Lock() error = %v, want ErrLockTimeout", err)
	}

	first.Unlock()
	if err := second.Lock(time.Second); err != nil {
		t.Errorf("Lock() after Unlock error = %v", err)
	}
	second.Unlock()
}

func TestAtomicWriter_Abort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	w, err := NewAtomicWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("partial"))
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("target exists after Abort")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %d", len(entries))
	}
}
