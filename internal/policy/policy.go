// Package policy decides whether an inbound direct message may reach the
// dispatcher, based on the account's dm_policy and allow list.
package policy

import (
	"fmt"
	"strings"
)

// DMPolicy selects how unsolicited inbound senders are handled.
type DMPolicy string

const (
	// PolicyDisabled blocks all inbound messages.
	PolicyDisabled DMPolicy = "disabled"
	// PolicyAllowlist admits only senders on the allow list.
	PolicyAllowlist DMPolicy = "allowlist"
	// PolicyPairing admits allow-listed senders and offers a pairing code
	// to everyone else.
	PolicyPairing DMPolicy = "pairing"
	// PolicyOpen admits every sender.
	PolicyOpen DMPolicy = "open"
)

// ParseDMPolicy validates a raw policy string. Empty input defaults to
// allowlist, the most restrictive mode that still admits anyone.
func ParseDMPolicy(raw string) (DMPolicy, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "":
		return PolicyAllowlist, nil
	case string(PolicyDisabled), string(PolicyAllowlist), string(PolicyPairing), string(PolicyOpen):
		return DMPolicy(normalized), nil
	default:
		return "", fmt.Errorf("unsupported dm policy: %s", raw)
	}
}

// Verdict is the outcome of evaluating a sender against a rule.
type Verdict int

const (
	// VerdictBlock drops the message.
	VerdictBlock Verdict = iota
	// VerdictAllow lets the message through to dispatch.
	VerdictAllow
	// VerdictPair drops the message but asks the pipeline to offer the
	// sender a pairing code.
	VerdictPair
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictPair:
		return "pair"
	default:
		return "block"
	}
}

// Rule is the per-account policy input.
type Rule struct {
	Policy    DMPolicy
	AllowFrom []string
}

// Evaluate decides the verdict for sender. self is the account's own
// external identity; a message from self is blocked in every mode so the
// account can never converse with itself. Matching against AllowFrom is
// case-insensitive and supports the "*" wildcard and "*@domain" patterns.
func (r Rule) Evaluate(sender, self string) Verdict {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return VerdictBlock
	}
	if self != "" && strings.EqualFold(sender, strings.TrimSpace(self)) {
		return VerdictBlock
	}
	switch r.Policy {
	case PolicyOpen:
		return VerdictAllow
	case PolicyAllowlist:
		if r.allows(sender) {
			return VerdictAllow
		}
		return VerdictBlock
	case PolicyPairing:
		if r.allows(sender) {
			return VerdictAllow
		}
		return VerdictPair
	default:
		return VerdictBlock
	}
}

func (r Rule) allows(sender string) bool {
	for _, pattern := range r.AllowFrom {
		if matchPattern(pattern, sender) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, sender string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	sender = strings.ToLower(sender)
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*@"); ok {
		return strings.HasSuffix(sender, "@"+suffix)
	}
	return pattern == sender
}
