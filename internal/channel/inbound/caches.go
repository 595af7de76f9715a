package inbound

import (
	"sync"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/dedupe"
)

// CacheSet owns one dedupe cache per account. Accounts inherit the
// default bounds unless their config overrides them; changing an
// account's bounds resets its cache.
type CacheSet struct {
	mu       sync.Mutex
	defaults channel.DedupeConfig
	entries  map[string]*cacheEntry
}

type cacheEntry struct {
	settings channel.DedupeConfig
	cache    *dedupe.Cache
}

func NewCacheSet(defaults channel.DedupeConfig) *CacheSet {
	return &CacheSet{
		defaults: defaults,
		entries:  map[string]*cacheEntry{},
	}
}

// For returns the cache for the account in cfg, creating it on first
// use.
func (s *CacheSet) For(cfg channel.Config) *dedupe.Cache {
	settings := cfg.Dedupe
	if settings == (channel.DedupeConfig{}) {
		settings = s.defaults
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[cfg.ID]
	if !ok || entry.settings != settings {
		entry = &cacheEntry{
			settings: settings,
			cache:    dedupe.New(settings.TTL, settings.MaxSize),
		}
		s.entries[cfg.ID] = entry
	}
	return entry.cache
}

// Size reports the number of live entries in an account's cache.
func (s *CacheSet) Size(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[accountID]
	if !ok {
		return 0
	}
	return entry.cache.Len()
}
