package reply

import "strings"

// Recipients is the computed destination set for an outgoing reply.
type Recipients struct {
	To []string
	Cc []string
}

// Resolve computes reply recipients from the original message envelope.
// The reply always goes to the original sender alone. With preserveCc
// set, everyone else on the original To and Cc lines stays on Cc, minus
// the bot's own address and the sender (both compared case-insensitively).
// Input order is preserved; third-party duplicates are kept as received.
func Resolve(botAddress, from string, to, cc []string, preserveCc bool) Recipients {
	out := Recipients{To: []string{from}}
	if !preserveCc {
		return out
	}
	for _, addr := range to {
		if sameAddress(addr, botAddress) || sameAddress(addr, from) {
			continue
		}
		out.Cc = append(out.Cc, addr)
	}
	for _, addr := range cc {
		if sameAddress(addr, botAddress) || sameAddress(addr, from) {
			continue
		}
		out.Cc = append(out.Cc, addr)
	}
	return out
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
