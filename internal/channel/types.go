package channel

import (
	"strings"
	"time"
)

// Type identifies a channel adapter (e.g. "gmail", "twilio", "vapi").
type Type string

func (t Type) String() string {
	return string(t)
}

// Identity describes the sender of an inbound message as the provider
// reports it.
type Identity struct {
	ExternalID  string
	DisplayName string
}

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentAudio AttachmentType = "audio"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
)

type Attachment struct {
	Type AttachmentType `json:"type"`
	URL  string         `json:"url,omitempty"`
	Name string         `json:"name,omitempty"`
	Mime string         `json:"mime,omitempty"`
	Size int64          `json:"size,omitempty"`
}

// ReplyRef points an outbound message at the inbound message it answers.
type ReplyRef struct {
	MessageID string `json:"message_id,omitempty"`
}

// Message is the normalized message body shared by all channels. ID is
// the provider's stable message identifier (Message-ID header, message
// SID, call id); messages without one cannot be deduplicated. Metadata
// is an opaque provider bag: whatever an adapter records at inbound time
// it receives back unchanged on the reply.
type Message struct {
	ID          string         `json:"id,omitempty"`
	Text        string         `json:"text,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	Reply       *ReplyRef      `json:"reply,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}

type InboundMessage struct {
	Channel     Type
	AccountID   string
	BotID       string
	Message     Message
	Sender      Identity
	ReplyTarget string
	ReceivedAt  time.Time
	Source      string
}

// SessionKey groups messages from one sender on one account into a
// dispatcher session: channel:account:sender.
func (m InboundMessage) SessionKey() string {
	sender := strings.TrimSpace(m.Sender.ExternalID)
	if sender == "" {
		sender = strings.TrimSpace(m.Sender.DisplayName)
	}
	return strings.Join([]string{string(m.Channel), m.AccountID, sender}, ":")
}

type OutboundMessage struct {
	Target  string  `json:"target"`
	Message Message `json:"message"`
}

// DedupeConfig bounds an account's duplicate-delivery cache. A zero TTL
// keeps entries until evicted by size; a zero MaxSize disables caching.
type DedupeConfig struct {
	TTL     time.Duration
	MaxSize int
}

// Config is one configured channel account. SelfIdentity is the
// account's own external identity (the bot's address or number),
// normalized by the adapter; the pipeline uses it to drop self-sent
// messages. Credentials is the provider-specific credential table
// validated by the adapter's Normalize.
type Config struct {
	ID           string
	Type         Type
	Name         string
	BotID        string
	Enabled      bool
	SelfIdentity string
	DMPolicy     string
	AllowFrom    []string
	PreserveCc   bool
	Dedupe       DedupeConfig
	Credentials  map[string]any
	UpdatedAt    time.Time
}
