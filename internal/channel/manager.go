package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ConfigStore provides the channel accounts the manager reconciles
// against.
type ConfigStore interface {
	ListConfigs(ctx context.Context) ([]Config, error)
	GetConfig(ctx context.Context, id string) (Config, bool)
}

// InboundProcessor handles inbound messages and replies through the
// given sender.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, cfg Config, msg InboundMessage, sender ReplySender) error
}

// Middleware wraps inbound handling.
type Middleware func(next InboundHandler) InboundHandler

// Manager owns the live receiver connections and the inbound worker
// pool. It reconciles connections against the config store on a ticker
// and on explicit Refresh calls.
type Manager struct {
	registry        *Registry
	store           ConfigStore
	processor       InboundProcessor
	logger          *slog.Logger
	refreshInterval time.Duration
	middlewares     []Middleware

	inboundQueue   chan inboundTask
	inboundWorkers int
	inboundOnce    sync.Once
	inboundCtx     context.Context
	inboundCancel  context.CancelFunc

	refreshCh chan struct{}
	refreshMu sync.Mutex

	mu          sync.Mutex
	connections map[string]*connectionEntry
}

type connectionEntry struct {
	config     Config
	connection Connection
}

type inboundTask struct {
	ctx context.Context
	cfg Config
	msg InboundMessage
}

func NewManager(log *slog.Logger, registry *Registry, store ConfigStore, processor InboundProcessor) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		registry:        registry,
		store:           store,
		processor:       processor,
		logger:          log.With(slog.String("component", "channel")),
		refreshInterval: 30 * time.Second,
		middlewares:     []Middleware{},
		inboundQueue:    make(chan inboundTask, 256),
		inboundWorkers:  4,
		refreshCh:       make(chan struct{}, 1),
		connections:     map[string]*connectionEntry{},
	}
}

// Use appends middleware to the inbound chain. Must be called before
// Start.
func (m *Manager) Use(mw ...Middleware) {
	m.middlewares = append(m.middlewares, mw...)
}

// Start launches the inbound workers and the reconcile loop.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("manager start")
	m.startInboundWorkers(ctx)
	go func() {
		m.refresh(ctx)
		ticker := time.NewTicker(m.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("manager stop")
				m.stopAll(context.WithoutCancel(ctx))
				return
			case <-ticker.C:
				m.refresh(ctx)
			case <-m.refreshCh:
				m.refresh(ctx)
			}
		}
	}()
}

// Refresh nudges the reconcile loop, typically after a config reload.
func (m *Manager) Refresh() {
	select {
	case m.refreshCh <- struct{}{}:
	default:
	}
}

// Shutdown stops the workers and all connections.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.inboundCancel != nil {
		m.inboundCancel()
	}
	m.stopAll(ctx)
	return nil
}

// HandleInbound enqueues an inbound message for pipeline processing.
// Webhook handlers call this directly; receiver connections arrive here
// through the middleware chain. The queue never blocks the provider
// callback: when full, the message is dropped with an error.
func (m *Manager) HandleInbound(ctx context.Context, cfg Config, msg InboundMessage) error {
	if m.processor == nil {
		return fmt.Errorf("inbound processor not configured")
	}
	m.startInboundWorkers(ctx)
	if m.inboundCtx != nil && m.inboundCtx.Err() != nil {
		return fmt.Errorf("inbound dispatcher stopped")
	}
	taskCtx := ctx
	if ctx != nil {
		taskCtx = context.WithoutCancel(ctx)
	}
	select {
	case m.inboundQueue <- inboundTask{ctx: taskCtx, cfg: cfg, msg: msg}:
		return nil
	default:
		return fmt.Errorf("inbound queue full")
	}
}

// Send delivers a message on the given account, applying the channel's
// outbound policy (chunking, retries, capability checks).
func (m *Manager) Send(ctx context.Context, accountID string, msg OutboundMessage) error {
	if m.store == nil {
		return fmt.Errorf("channel manager not configured")
	}
	cfg, ok := m.store.GetConfig(ctx, strings.TrimSpace(accountID))
	if !ok {
		return fmt.Errorf("unknown account: %s", accountID)
	}
	sender, ok := m.registry.GetSender(cfg.Type)
	if !ok {
		return fmt.Errorf("channel %s cannot send", cfg.Type)
	}
	policy := m.resolveOutboundPolicy(cfg.Type)
	outbound, err := buildOutboundMessages(msg, policy)
	if err != nil {
		return err
	}
	for _, item := range outbound {
		if err := m.sendWithConfig(ctx, sender, cfg, item, policy); err != nil {
			m.logger.Error("send outbound failed",
				slog.String("channel", cfg.Type.String()),
				slog.String("account", cfg.ID),
				slog.Any("error", err))
			return err
		}
	}
	return nil
}

// ConnectionStatus is a snapshot of one live receiver connection.
type ConnectionStatus struct {
	AccountID string `json:"account_id"`
	Channel   Type   `json:"channel"`
	Running   bool   `json:"running"`
}

// Connections returns a snapshot of the live receiver connections.
func (m *Manager) Connections() []ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]ConnectionStatus, 0, len(m.connections))
	for id, entry := range m.connections {
		if entry == nil || entry.connection == nil {
			continue
		}
		items = append(items, ConnectionStatus{
			AccountID: id,
			Channel:   entry.config.Type,
			Running:   entry.connection.Running(),
		})
	}
	return items
}

func (m *Manager) refresh(ctx context.Context) {
	// Serialize refreshes so concurrent reconciles cannot start duplicate
	// adapter connections.
	if !m.refreshMu.TryLock() {
		return
	}
	defer m.refreshMu.Unlock()

	if m.store == nil {
		return
	}
	configs, err := m.store.ListConfigs(ctx)
	if err != nil {
		m.logger.Error("list configs failed", slog.Any("error", err))
		return
	}
	m.reconcile(ctx, configs)
}

func (m *Manager) reconcile(ctx context.Context, configs []Config) {
	active := map[string]Config{}
	for _, cfg := range configs {
		if cfg.ID == "" || !cfg.Enabled {
			continue
		}
		active[cfg.ID] = cfg
		if err := m.ensureConnection(ctx, cfg); err != nil {
			m.logger.Error("adapter start failed",
				slog.String("channel", cfg.Type.String()),
				slog.String("account", cfg.ID),
				slog.Any("error", err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.connections {
		if _, ok := active[id]; ok {
			continue
		}
		if entry != nil && entry.connection != nil {
			m.logger.Info("adapter stop",
				slog.String("channel", entry.config.Type.String()),
				slog.String("account", id))
			if err := entry.connection.Stop(ctx); err != nil && !errors.Is(err, ErrStopNotSupported) {
				m.logger.Warn("adapter stop failed", slog.String("account", id), slog.Any("error", err))
			}
		}
		delete(m.connections, id)
	}
}

func (m *Manager) ensureConnection(ctx context.Context, cfg Config) error {
	receiver, ok := m.registry.GetReceiver(cfg.Type)
	if !ok {
		return nil
	}

	m.mu.Lock()
	entry := m.connections[cfg.ID]

	if entry != nil && !entry.config.UpdatedAt.Before(cfg.UpdatedAt) && entry.connection.Running() {
		m.mu.Unlock()
		return nil
	}

	// Stop the stale connection before starting a new one. Keep the map
	// slot empty under the lock so another goroutine cannot race a
	// duplicate start.
	var oldConn Connection
	if entry != nil {
		oldConn = entry.connection
		delete(m.connections, cfg.ID)
	}
	m.mu.Unlock()

	if oldConn != nil && oldConn.Running() {
		m.logger.Info("adapter restart",
			slog.String("channel", cfg.Type.String()),
			slog.String("account", cfg.ID))
		if err := oldConn.Stop(ctx); err != nil {
			if errors.Is(err, ErrStopNotSupported) {
				m.logger.Warn("adapter restart skipped",
					slog.String("channel", cfg.Type.String()),
					slog.String("account", cfg.ID))
				m.mu.Lock()
				if _, exists := m.connections[cfg.ID]; !exists {
					m.connections[cfg.ID] = entry
				}
				m.mu.Unlock()
				return nil
			}
			return err
		}
	}

	m.mu.Lock()
	if existing, ok := m.connections[cfg.ID]; ok && existing != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.logger.Info("adapter start",
		slog.String("channel", cfg.Type.String()),
		slog.String("account", cfg.ID))
	conn, err := receiver.Connect(ctx, cfg, m.inboundChain())
	if err != nil {
		return err
	}

	m.mu.Lock()
	if existing, ok := m.connections[cfg.ID]; ok && existing != nil {
		m.mu.Unlock()
		_ = conn.Stop(ctx)
		return nil
	}
	m.connections[cfg.ID] = &connectionEntry{
		config:     cfg,
		connection: conn,
	}
	m.mu.Unlock()
	return nil
}

// inboundChain wraps manager enqueueing with the registered middleware.
func (m *Manager) inboundChain() InboundHandler {
	handler := m.HandleInbound
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		handler = m.middlewares[i](handler)
	}
	return handler
}

func (m *Manager) stopAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.connections {
		if entry != nil && entry.connection != nil {
			m.logger.Info("adapter stop",
				slog.String("channel", entry.config.Type.String()),
				slog.String("account", id))
			if err := entry.connection.Stop(ctx); err != nil && !errors.Is(err, ErrStopNotSupported) {
				m.logger.Warn("adapter stop failed", slog.String("account", id), slog.Any("error", err))
			}
		}
		delete(m.connections, id)
	}
}

func (m *Manager) startInboundWorkers(ctx context.Context) {
	m.inboundOnce.Do(func() {
		workerCtx := ctx
		if workerCtx == nil {
			workerCtx = context.Background()
		}
		m.inboundCtx, m.inboundCancel = context.WithCancel(context.WithoutCancel(workerCtx))
		for i := 0; i < m.inboundWorkers; i++ {
			go m.runInboundWorker(m.inboundCtx)
		}
	})
}

func (m *Manager) runInboundWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-m.inboundQueue:
			if err := m.handleInbound(task.ctx, task.cfg, task.msg); err != nil {
				m.logger.Error("inbound processing failed",
					slog.String("channel", task.msg.Channel.String()),
					slog.String("account", task.cfg.ID),
					slog.Any("error", err))
			}
		}
	}
}

func (m *Manager) handleInbound(ctx context.Context, cfg Config, msg InboundMessage) error {
	if m.processor == nil {
		return fmt.Errorf("inbound processor not configured")
	}
	sender := m.newReplySender(cfg)
	return m.processor.HandleInbound(ctx, cfg, msg, sender)
}

func (m *Manager) newReplySender(cfg Config) ReplySender {
	sender, _ := m.registry.GetSender(cfg.Type)
	return &managerReplySender{
		manager: m,
		sender:  sender,
		config:  cfg,
	}
}

func (m *Manager) resolveOutboundPolicy(channelType Type) OutboundPolicy {
	desc, ok := m.registry.GetDescriptor(channelType)
	if !ok {
		return NormalizeOutboundPolicy(OutboundPolicy{})
	}
	return NormalizeOutboundPolicy(desc.OutboundPolicy)
}

func buildOutboundMessages(msg OutboundMessage, policy OutboundPolicy) ([]OutboundMessage, error) {
	if msg.Message.IsEmpty() {
		return nil, fmt.Errorf("message is required")
	}
	if policy.TextChunkLimit <= 0 || runeLen(msg.Message.Text) <= policy.TextChunkLimit {
		return []OutboundMessage{msg}, nil
	}
	chunks := ChunkText(msg.Message.Text, policy.TextChunkLimit)
	items := make([]OutboundMessage, 0, len(chunks))
	for _, chunk := range chunks {
		item := msg
		item.Message.Text = chunk
		items = append(items, item)
	}
	return items, nil
}

func (m *Manager) sendWithConfig(ctx context.Context, sender Sender, cfg Config, msg OutboundMessage, policy OutboundPolicy) error {
	if sender == nil {
		return fmt.Errorf("channel %s cannot send", cfg.Type)
	}
	target := strings.TrimSpace(msg.Target)
	if target == "" {
		return fmt.Errorf("target is required")
	}
	if msg.Message.IsEmpty() {
		return fmt.Errorf("message is required")
	}
	if desc, ok := m.registry.GetDescriptor(cfg.Type); ok {
		caps := desc.Capabilities
		if strings.TrimSpace(msg.Message.Text) != "" && !caps.Text {
			return fmt.Errorf("channel does not support text")
		}
		if len(msg.Message.Attachments) > 0 && !caps.Attachments {
			return fmt.Errorf("channel does not support attachments")
		}
		if msg.Message.Reply != nil && !caps.Reply {
			msg.Message.Reply = nil
		}
	}
	var lastErr error
	for i := 0; i < policy.RetryMax; i++ {
		err := sender.Send(ctx, cfg, OutboundMessage{Target: target, Message: msg.Message})
		if err == nil {
			return nil
		}
		lastErr = err
		m.logger.Warn("send outbound retry",
			slog.String("channel", cfg.Type.String()),
			slog.String("account", cfg.ID),
			slog.Int("attempt", i+1),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Duration(policy.RetryBackoffMs) * time.Millisecond):
		}
	}
	return fmt.Errorf("send outbound failed after retries: %w", lastErr)
}

type managerReplySender struct {
	manager *Manager
	sender  Sender
	config  Config
}

func (s *managerReplySender) Send(ctx context.Context, msg OutboundMessage) error {
	if s.manager == nil {
		return fmt.Errorf("channel manager not configured")
	}
	policy := s.manager.resolveOutboundPolicy(s.config.Type)
	outbound, err := buildOutboundMessages(msg, policy)
	if err != nil {
		return err
	}
	for _, item := range outbound {
		if err := s.manager.sendWithConfig(ctx, s.sender, s.config, item, policy); err != nil {
			return err
		}
	}
	return nil
}
