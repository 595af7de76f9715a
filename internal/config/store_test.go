package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

const storeConfigV1 = `
[[accounts]]
id = "a"
channel = "mock"
[accounts.credentials]
address = "a@example.com"

[[accounts]]
id = "b"
channel = "mock"
[accounts.credentials]
address = "b@example.com"
`

// Same file with only account b touched.
const storeConfigV2 = `
[[accounts]]
id = "a"
channel = "mock"
[accounts.credentials]
address = "a@example.com"

[[accounts]]
id = "b"
channel = "mock"
dm_policy = "open"
[accounts.credentials]
address = "b@example.com"
`

func TestStoreServesConfigs(t *testing.T) {
	path := writeConfig(t, storeConfigV1)
	store, err := NewStore(discardLogger(), testRegistry(), path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	configs, err := store.ListConfigs(context.Background())
	if err != nil || len(configs) != 2 {
		t.Fatalf("configs = %v, err = %v", configs, err)
	}
	if configs[0].ID != "a" || configs[1].ID != "b" {
		t.Fatalf("order = %v, %v", configs[0].ID, configs[1].ID)
	}

	cfg, ok := store.GetConfig(context.Background(), "b")
	if !ok || cfg.SelfIdentity != "b@example.com" {
		t.Fatalf("GetConfig = %+v, %v", cfg, ok)
	}
	if _, ok := store.GetConfig(context.Background(), "nope"); ok {
		t.Fatal("unknown account found")
	}
}

func TestStoreRejectsInvalidFileAtBoot(t *testing.T) {
	path := writeConfig(t, `
[[accounts]]
id = "a"
channel = "unknown"
`)
	if _, err := NewStore(discardLogger(), testRegistry(), path); err == nil {
		t.Fatal("expected error for invalid account")
	}
}

func TestStoreReloadBumpsOnlyChangedAccounts(t *testing.T) {
	path := writeConfig(t, storeConfigV1)
	store, err := NewStore(discardLogger(), testRegistry(), path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	clock := time.Now().Add(time.Hour)
	store.now = func() time.Time { return clock }

	before, _ := store.GetConfig(context.Background(), "a")
	beforeB, _ := store.GetConfig(context.Background(), "b")

	if err := os.WriteFile(path, []byte(storeConfigV2), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	afterA, _ := store.GetConfig(context.Background(), "a")
	afterB, _ := store.GetConfig(context.Background(), "b")
	if !afterA.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("untouched account bumped: %v -> %v", before.UpdatedAt, afterA.UpdatedAt)
	}
	if !afterB.UpdatedAt.Equal(clock) {
		t.Fatalf("changed account not bumped: %v -> %v", beforeB.UpdatedAt, afterB.UpdatedAt)
	}
	if afterB.DMPolicy != "open" {
		t.Fatalf("dm policy = %q", afterB.DMPolicy)
	}
}

func TestStoreReloadKeepsPreviousConfigOnError(t *testing.T) {
	path := writeConfig(t, storeConfigV1)
	store, err := NewStore(discardLogger(), testRegistry(), path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	if err := os.WriteFile(path, []byte("[[accounts]]\nid = \"a\"\nchannel = \"unknown\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.reload(); err == nil {
		t.Fatal("expected reload error")
	}

	configs, _ := store.ListConfigs(context.Background())
	if len(configs) != 2 {
		t.Fatalf("previous config lost: %v", configs)
	}
}

func TestStoreRemovesDeletedAccounts(t *testing.T) {
	path := writeConfig(t, storeConfigV1)
	store, err := NewStore(discardLogger(), testRegistry(), path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	only := `
[[accounts]]
id = "a"
channel = "mock"
[accounts.credentials]
address = "a@example.com"
`
	if err := os.WriteFile(path, []byte(only), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := store.GetConfig(context.Background(), "b"); ok {
		t.Fatal("deleted account still served")
	}
}

func TestStoreWatchTriggersReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(storeConfigV1), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewStore(discardLogger(), testRegistry(), path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	reloaded := make(chan struct{}, 4)
	store.OnReload(func() { reloaded <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte(storeConfigV2), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload not triggered by file change")
	}

	cfg, ok := store.GetConfig(context.Background(), "b")
	if !ok || cfg.DMPolicy != "open" {
		t.Fatalf("config after watch reload = %+v", cfg)
	}
}
