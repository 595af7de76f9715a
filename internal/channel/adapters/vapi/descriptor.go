// Package vapi implements the voice channel adapter on VAPI: server
// webhooks deliver call outcomes, the REST API places outbound calls.
package vapi

import "github.com/ResslAI-Salesforce/dalo-2/internal/channel"

// Type is the registered channel type identifier for VAPI voice accounts.
const Type channel.Type = "vapi"
