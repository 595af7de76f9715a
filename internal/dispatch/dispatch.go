// Package dispatch defines the reply dispatcher boundary: surviving
// inbound messages are handed to an external service that produces the
// reply text, if any.
package dispatch

import (
	"context"
	"time"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

// Request carries one inbound message to the dispatcher.
type Request struct {
	AccountID   string               `json:"account_id"`
	Channel     string               `json:"channel"`
	BotID       string               `json:"bot_id,omitempty"`
	SessionKey  string               `json:"session_key,omitempty"`
	MessageID   string               `json:"message_id,omitempty"`
	Sender      string               `json:"sender"`
	SenderName  string               `json:"sender_name,omitempty"`
	Text        string               `json:"text"`
	Attachments []channel.Attachment `json:"attachments,omitempty"`
	ReceivedAt  time.Time            `json:"received_at"`
}

// Reply is the dispatcher's answer. An empty Text means the dispatcher
// chose not to respond and nothing is sent back on the channel.
type Reply struct {
	Text string `json:"text"`
}

// Dispatcher produces a reply for an inbound message.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (Reply, error)
}
