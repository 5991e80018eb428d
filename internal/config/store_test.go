package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreSnapshotIsolation(t *testing.T) {
	s := NewStore(Default())

	snap := s.Snapshot()
	updated := Default()
	updated.Formatting.Provider = ProviderOpenAI
	s.Set(updated)

	if snap.Formatting.Provider != ProviderNone {
		t.Errorf("snapshot changed after Set: provider = %q", snap.Formatting.Provider)
	}
	if got := s.Snapshot().Formatting.Provider; got != ProviderOpenAI {
		t.Errorf("Snapshot().Formatting.Provider = %q, want %q", got, ProviderOpenAI)
	}
}

// writeConfig writes content and pushes the mtime forward so the watcher's
// mtime check notices even on coarse-grained filesystems.
func writeConfig(t *testing.T, path, content string, offset time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	mtime := time.Now().Add(offset)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherReloadsValidChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log_level: info\n", 0)

	store := NewStore(Default())
	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, store,
		WithInterval(10*time.Millisecond),
		WithOnChange(func(_, new *Config) { changed <- new }),
	)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "formatting:\n  provider: local\n", time.Second)

	select {
	case cfg := <-changed:
		if cfg.Formatting.Provider != ProviderLocal {
			t.Errorf("onChange provider = %q, want %q", cfg.Formatting.Provider, ProviderLocal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onChange was not called")
	}
	if got := store.Snapshot().Formatting.Provider; got != ProviderLocal {
		t.Errorf("store provider = %q, want %q", got, ProviderLocal)
	}
}

func TestWatcherIgnoresInvalidChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log_level: info\n", 0)

	store := NewStore(Default())
	w, err := NewWatcher(path, store, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "formatting:\n  provider: bogus\n", time.Second)
	time.Sleep(100 * time.Millisecond)
	if got := store.Snapshot().Formatting.Provider; got != ProviderNone {
		t.Errorf("invalid config was applied: provider = %q", got)
	}

	writeConfig(t, path, "log_level: debug\n", 2*time.Second)
	waitFor(t, func() bool { return store.Snapshot().LogLevel == "debug" })
}

func TestNewWatcherMissingFile(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), NewStore(Default()))
	if err == nil {
		t.Error("NewWatcher should fail for a missing file")
	}
}
