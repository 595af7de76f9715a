package channel

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Registry holds the registered channel adapters. It is created via
// NewRegistry and passed explicitly to the components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Type]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Type]Adapter{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter is nil")
	}
	ct := normalizeType(adapter.Descriptor().Type.String())
	if ct == "" {
		return errors.New("channel type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[ct]; exists {
		return fmt.Errorf("channel type already registered: %s", ct)
	}
	r.adapters[ct] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given channel type.
func (r *Registry) Get(channelType Type) (Adapter, bool) {
	ct := normalizeType(channelType.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[ct]
	return adapter, ok
}

// Types returns all registered channel types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Type, 0, len(r.adapters))
	for ct := range r.adapters {
		items = append(items, ct)
	}
	return items
}

// GetDescriptor returns the descriptor for the given channel type.
func (r *Registry) GetDescriptor(channelType Type) (Descriptor, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return Descriptor{}, false
	}
	return adapter.Descriptor(), true
}

// ListDescriptors returns descriptors for all registered channel types.
func (r *Registry) ListDescriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Descriptor, 0, len(r.adapters))
	for _, a := range r.adapters {
		items = append(items, a.Descriptor())
	}
	return items
}

// ParseType validates and normalizes a raw string into a registered Type.
func (r *Registry) ParseType(raw string) (Type, error) {
	ct := normalizeType(raw)
	if ct == "" {
		return "", fmt.Errorf("unsupported channel type: %s", raw)
	}
	if _, ok := r.Get(ct); !ok {
		return "", fmt.Errorf("unsupported channel type: %s", raw)
	}
	return ct, nil
}

// GetSender returns the Sender for the given channel type, or false if
// the adapter cannot send.
func (r *Registry) GetSender(channelType Type) (Sender, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, false
	}
	sender, ok := adapter.(Sender)
	return sender, ok
}

// GetReceiver returns the Receiver for the given channel type, or false
// if the adapter has no long-lived inbound source.
func (r *Registry) GetReceiver(channelType Type) (Receiver, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return nil, false
	}
	receiver, ok := adapter.(Receiver)
	return receiver, ok
}

// NormalizeConfig runs the adapter's credential validation on cfg.
func (r *Registry) NormalizeConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	adapter, ok := r.Get(cfg.Type)
	if !ok {
		return fmt.Errorf("unsupported channel type: %s", cfg.Type)
	}
	if cfg.Credentials == nil {
		cfg.Credentials = map[string]any{}
	}
	return adapter.Normalize(cfg)
}

func normalizeType(raw string) Type {
	return Type(strings.TrimSpace(strings.ToLower(raw)))
}
