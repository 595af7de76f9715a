package reply

import "strings"

// Subject returns the subject line for a reply, adding the Re: prefix
// unless one is already present (any case).
func Subject(original string) string {
	trimmed := strings.TrimSpace(original)
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return strings.TrimSpace("Re: " + trimmed)
}

// References builds the References chain for a reply: the original chain
// with the parent Message-ID appended once.
func References(existing []string, parentID string) []string {
	refs := make([]string, 0, len(existing)+1)
	for _, ref := range existing {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return refs
	}
	if len(refs) > 0 && refs[len(refs)-1] == parentID {
		return refs
	}
	return append(refs, parentID)
}
