package channel

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrStopNotSupported = errors.New("channel connection stop not supported")

// InboundHandler receives normalized inbound messages from adapters.
type InboundHandler func(ctx context.Context, cfg Config, msg InboundMessage) error

// ReplySender sends replies back on the connection a message arrived on.
type ReplySender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Adapter is the minimal contract every channel implements. Normalize
// validates the account's credential table in place and derives
// SelfIdentity; it must not perform network calls.
type Adapter interface {
	Descriptor() Descriptor
	Normalize(cfg *Config) error
}

// Sender delivers outbound messages for an account.
type Sender interface {
	Send(ctx context.Context, cfg Config, msg OutboundMessage) error
}

// Receiver owns a long-lived inbound source for an account. Adapters fed
// by webhooks do not implement it; their inbound entry point is the
// webhook handler.
type Receiver interface {
	Connect(ctx context.Context, cfg Config, handler InboundHandler) (Connection, error)
}

type Connection interface {
	AccountID() string
	Type() Type
	Stop(ctx context.Context) error
	Running() bool
}

// BaseConnection is the common Connection implementation adapters embed
// or return directly.
type BaseConnection struct {
	accountID   string
	channelType Type
	stop        func(ctx context.Context) error
	running     atomic.Bool
}

// NewConnection creates a running connection for cfg with the given stop
// function (nil means the connection cannot be stopped).
func NewConnection(cfg Config, stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{
		accountID:   cfg.ID,
		channelType: cfg.Type,
		stop:        stop,
	}
	conn.running.Store(true)
	return conn
}

func (c *BaseConnection) AccountID() string {
	return c.accountID
}

func (c *BaseConnection) Type() Type {
	return c.channelType
}

func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	err := c.stop(ctx)
	if err == nil {
		c.running.Store(false)
	}
	return err
}

func (c *BaseConnection) Running() bool {
	return c.running.Load()
}

// MarkStopped flips the running flag without invoking the stop function;
// receivers call it when the provider side closes the connection.
func (c *BaseConnection) MarkStopped() {
	c.running.Store(false)
}
