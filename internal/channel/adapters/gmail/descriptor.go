// Package gmail implements the email channel adapter backed by a Gmail
// mailbox: IMAP for receiving, SMTP submission for sending.
package gmail

import "github.com/ResslAI-Salesforce/dalo-2/internal/channel"

// Type is the registered channel type identifier for Gmail accounts.
const Type channel.Type = "gmail"
