// Package mailgun implements the Mailgun email channel adapter.
// Inbound mail arrives through Mailgun route webhooks and outbound
// replies go through the Messages API.
package mailgun

import "github.com/ResslAI-Salesforce/dalo-2/internal/channel"

const Type channel.Type = "mailgun"
