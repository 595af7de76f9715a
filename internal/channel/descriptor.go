package channel

// Capabilities describes what a channel can carry, used by the manager
// to reject sends the provider cannot express.
type Capabilities struct {
	Text        bool `json:"text"`
	Attachments bool `json:"attachments"`
	Reply       bool `json:"reply"`
}

// Descriptor is the adapter's self-description served by the channels API
// and consulted by the manager for send policy.
type Descriptor struct {
	Type             Type           `json:"type"`
	DisplayName      string         `json:"display_name"`
	Description      string         `json:"description,omitempty"`
	Capabilities     Capabilities   `json:"capabilities"`
	CredentialSchema ConfigSchema   `json:"credential_schema"`
	OutboundPolicy   OutboundPolicy `json:"outbound_policy"`
}
