package adapterutil

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
)

var htmlPolicy = bluemonday.UGCPolicy()

// HTMLToText renders an HTML body as markdown-ish plain text. The input
// is sanitized first so the converter only sees benign markup.
func HTMLToText(html string) string {
	sanitized := htmlPolicy.Sanitize(html)
	markdown, err := htmltomarkdown.ConvertString(sanitized)
	if err != nil {
		return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(html))
	}
	return strings.TrimSpace(markdown)
}

// TextWithAttachmentLinks appends attachment links to the text body,
// for channels that deliver attachments as references rather than
// re-uploading content.
func TextWithAttachmentLinks(msg channel.Message) string {
	if len(msg.Attachments) == 0 {
		return msg.Text
	}
	var b strings.Builder
	b.WriteString(msg.Text)
	for _, att := range msg.Attachments {
		if att.URL == "" {
			continue
		}
		b.WriteString("\n")
		if att.Name != "" {
			b.WriteString(att.Name)
			b.WriteString(": ")
		}
		b.WriteString(att.URL)
	}
	return b.String()
}

// AngleWrap brackets a bare message id for use in threading headers.
func AngleWrap(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "<") {
		return id
	}
	return "<" + id + ">"
}
