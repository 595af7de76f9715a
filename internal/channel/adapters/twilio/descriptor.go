// Package twilio implements the SMS channel adapter on Twilio's
// Programmable Messaging: webhook receive, REST send.
package twilio

import "github.com/ResslAI-Salesforce/dalo-2/internal/channel"

// Type is the registered channel type identifier for Twilio SMS accounts.
const Type channel.Type = "twilio"
