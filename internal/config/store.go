package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

const reloadDebounce = 250 * time.Millisecond

// Store serves channel account configs from the TOML file and keeps
// them fresh by watching the file. Only accounts whose content actually
// changed get a bumped UpdatedAt, so the connection manager restarts
// only affected connections.
type Store struct {
	logger   *slog.Logger
	registry *channel.Registry
	path     string
	now      func() time.Time

	mu       sync.RWMutex
	configs  []channel.Config
	byID     map[string]channel.Config
	prints   map[string]string
	updated  map[string]time.Time
	onReload []func()

	watchOnce sync.Once
	stop      chan struct{}
}

// NewStore loads the file once. Invalid account blocks fail construction
// so bad config surfaces at boot.
func NewStore(log *slog.Logger, registry *channel.Registry, path string) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		logger:   log.With(slog.String("component", "config")),
		registry: registry,
		path:     path,
		now:      time.Now,
		byID:     map[string]channel.Config{},
		prints:   map[string]string{},
		updated:  map[string]time.Time{},
		stop:     make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// ListConfigs implements channel.ConfigStore.
func (s *Store) ListConfigs(ctx context.Context) ([]channel.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]channel.Config, len(s.configs))
	copy(out, s.configs)
	return out, nil
}

// GetConfig implements channel.ConfigStore.
func (s *Store) GetConfig(ctx context.Context, id string) (channel.Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.byID[id]
	return cfg, ok
}

// OnReload registers a callback invoked after every successful reload.
func (s *Store) OnReload(fn func()) {
	s.mu.Lock()
	s.onReload = append(s.onReload, fn)
	s.mu.Unlock()
}

// Watch starts the file watcher. The watch runs until ctx is done or
// Close is called. Watching the parent directory instead of the file
// itself survives editors and provisioning tools that replace the file
// by rename.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	started := false
	s.watchOnce.Do(func() {
		started = true
		go s.watchLoop(ctx, watcher)
	})
	if !started {
		watcher.Close()
	}
	return nil
}

// Close stops the watcher goroutine.
func (s *Store) Close() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(s.path)
	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if err := s.reload(); err != nil {
				s.logger.Error("config reload failed, keeping previous config", slog.Any("error", err))
				continue
			}
			s.notifyReload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("config watcher error", slog.Any("error", err))
		}
	}
}

func (s *Store) notifyReload() {
	s.mu.RLock()
	callbacks := make([]func(), len(s.onReload))
	copy(callbacks, s.onReload)
	s.mu.RUnlock()
	for _, fn := range callbacks {
		fn()
	}
}

func (s *Store) reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	accounts, err := BuildAccounts(cfg, s.registry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]channel.Config, len(accounts))
	prints := make(map[string]string, len(accounts))
	changed := 0
	for i := range accounts {
		account := &accounts[i]
		fp := fingerprint(*account)
		prints[account.ID] = fp
		if prev, ok := s.prints[account.ID]; !ok || prev != fp {
			s.updated[account.ID] = s.now()
			changed++
		}
		account.UpdatedAt = s.updated[account.ID]
		next[account.ID] = *account
	}
	for id := range s.updated {
		if _, ok := prints[id]; !ok {
			delete(s.updated, id)
		}
	}

	s.configs = accounts
	s.byID = next
	s.prints = prints
	s.logger.Info("config loaded",
		slog.Int("accounts", len(accounts)),
		slog.Int("changed", changed))
	return nil
}

// fingerprint hashes the content of one account config. JSON gives a
// stable key order for the credential table.
func fingerprint(cfg channel.Config) string {
	payload, _ := json.Marshal(struct {
		Type         channel.Type
		Name         string
		BotID        string
		Enabled      bool
		SelfIdentity string
		DMPolicy     string
		AllowFrom    []string
		PreserveCc   bool
		DedupeTTL    int64
		DedupeMax    int
		Credentials  map[string]any
	}{
		Type:         cfg.Type,
		Name:         cfg.Name,
		BotID:        cfg.BotID,
		Enabled:      cfg.Enabled,
		SelfIdentity: cfg.SelfIdentity,
		DMPolicy:     cfg.DMPolicy,
		AllowFrom:    cfg.AllowFrom,
		PreserveCc:   cfg.PreserveCc,
		DedupeTTL:    int64(cfg.Dedupe.TTL),
		DedupeMax:    cfg.Dedupe.MaxSize,
		Credentials:  cfg.Credentials,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
