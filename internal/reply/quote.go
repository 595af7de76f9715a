// Package reply implements the threading rules shared by the mail-backed
// channel adapters: extracting the sender's latest text from a quoted
// reply chain and computing reply recipients and headers.
package reply

import (
	"regexp"
	"strings"
)

// Marker lines that introduce quoted history in a reply body. Everything
// from the first marker onward is prior conversation, not new content.
var quoteMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^on .+ wrote:$`),
	regexp.MustCompile(`(?i)^-{2,}\s*(original message.*)?$`),
	regexp.MustCompile(`^_{2,}$`),
}

// LatestContent returns the new text from a reply body with quoted
// history removed. Scanning stops at the first marker line, which is
// discarded together with the rest of the body; `>`-quoted lines seen
// before the marker are dropped without stopping the scan. The kept
// lines are rejoined and trimmed.
func LatestContent(body string) string {
	lines := strings.Split(body, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if isQuoteMarker(line) {
			break
		}
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isQuoteMarker(line string) bool {
	for _, marker := range quoteMarkers {
		if marker.MatchString(line) {
			return true
		}
	}
	return false
}
