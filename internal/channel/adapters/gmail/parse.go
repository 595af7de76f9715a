package gmail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/adapterutil"
	"github.com/ResslAI-Salesforce/dalo-2/internal/reply"
)

// Metadata keys the adapter writes at inbound time and reads back when
// the reply is sent. Values survive a JSON round trip through the
// dispatcher.
const (
	metaReplyCc      = "reply_cc"
	metaReplySubject = "reply_subject"
	metaParentID     = "parent_message_id"
	metaReferences   = "references"
)

// parseInbound turns a raw RFC822 message into the normalized inbound
// form. Reply recipients, subject, and the References chain are resolved
// here, while the original headers are at hand, and carried in message
// metadata.
func parseInbound(cfg channel.Config, raw []byte) (channel.InboundMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return channel.InboundMessage{}, fmt.Errorf("read message: %w", err)
	}

	header := mr.Header
	msgID, _ := header.MessageID()
	subject, _ := header.Subject()
	date, err := header.Date()
	if err != nil || date.IsZero() {
		date = time.Now()
	}
	fromList, _ := header.AddressList("From")
	if len(fromList) == 0 || fromList[0] == nil || fromList[0].Address == "" {
		return channel.InboundMessage{}, errors.New("message has no From address")
	}
	from := fromList[0]
	toList, _ := header.AddressList("To")
	ccList, _ := header.AddressList("Cc")
	references, _ := header.MsgIDList("References")
	if len(references) == 0 {
		references, _ = header.MsgIDList("In-Reply-To")
	}

	var textPlain, textHTML string
	var attachments []channel.Attachment
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Keep what was parsed before the malformed part.
			break
		}
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, rerr := io.ReadAll(part.Body)
			if rerr != nil {
				continue
			}
			switch {
			case strings.EqualFold(contentType, "text/plain") && textPlain == "":
				textPlain = string(body)
			case strings.EqualFold(contentType, "text/html") && textHTML == "":
				textHTML = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			attachments = append(attachments, channel.NormalizeInboundAttachment(channel.Attachment{
				Name: filename,
				Mime: contentType,
				Size: size,
			}))
		}
	}

	text := textPlain
	if strings.TrimSpace(text) == "" && textHTML != "" {
		text = adapterutil.HTMLToText(textHTML)
	}

	recipients := reply.Resolve(cfg.SelfIdentity, from.Address, addressStrings(toList), addressStrings(ccList), cfg.PreserveCc)
	metadata := map[string]any{
		metaReplySubject: reply.Subject(subject),
	}
	if len(recipients.Cc) > 0 {
		metadata[metaReplyCc] = recipients.Cc
	}
	if msgID != "" {
		metadata[metaParentID] = msgID
		metadata[metaReferences] = reply.References(references, msgID)
	}

	return channel.InboundMessage{
		Channel:   Type,
		AccountID: cfg.ID,
		BotID:     cfg.BotID,
		Message: channel.Message{
			ID:          msgID,
			Text:        text,
			Attachments: attachments,
			Metadata:    metadata,
		},
		Sender: channel.Identity{
			ExternalID:  from.Address,
			DisplayName: from.Name,
		},
		ReplyTarget: recipients.To[0],
		ReceivedAt:  date.UTC(),
		Source:      "imap",
	}, nil
}

func addressStrings(list []*mail.Address) []string {
	out := make([]string, 0, len(list))
	for _, addr := range list {
		if addr != nil && addr.Address != "" {
			out = append(out, addr.Address)
		}
	}
	return out
}
