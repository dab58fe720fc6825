// Package webhook ingests Evolution API webhook deliveries: inbound
// WhatsApp messages become tickets and messages, and connection updates
// refresh channel status.
package webhook

import (
	"strings"

	"github.com/pwviptbl/CallCenter/pkg/ticket"
)

// Event types the ingestor acts on. Everything else is acknowledged and
// ignored.
const (
	EventMessagesUpsert   = "messages.upsert"
	EventConnectionUpdate = "connection.update"
)

const defaultContactName = "Contato"

// Payload is an Evolution API v2 webhook body.
type Payload struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     Data   `json:"data"`
}

// Data is the event-specific part of a Payload. Message events fill Key,
// PushName and Message; connection events fill State.
type Data struct {
	Key      Key             `json:"key"`
	PushName string          `json:"pushName"`
	Message  *MessageContent `json:"message"`
	State    string          `json:"state"`
}

type Key struct {
	ID        string `json:"id"`
	FromMe    bool   `json:"fromMe"`
	RemoteJID string `json:"remoteJid"`
}

// MessageContent holds the message shapes text can arrive in.
type MessageContent struct {
	Conversation        string          `json:"conversation"`
	ExtendedTextMessage *extendedText   `json:"extendedTextMessage"`
	ImageMessage        *captionedMedia `json:"imageMessage"`
	DocumentMessage     *captionedMedia `json:"documentMessage"`
}

type extendedText struct {
	Text string `json:"text"`
}

type captionedMedia struct {
	Caption string `json:"caption"`
}

// Text returns the first non-empty text: plain conversation, extended
// (quoted or link preview) text, image caption, then document caption.
func (m *MessageContent) Text() string {
	text, _ := m.content()
	return text
}

// MediaType reports the attachment kind the text was taken from. A message
// with no text reports its first attachment.
func (m *MessageContent) MediaType() ticket.MediaType {
	_, media := m.content()
	return media
}

func (m *MessageContent) content() (string, ticket.MediaType) {
	switch {
	case m == nil:
		return "", ""
	case m.Conversation != "":
		return m.Conversation, ""
	case m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "":
		return m.ExtendedTextMessage.Text, ""
	case m.ImageMessage != nil && m.ImageMessage.Caption != "":
		return m.ImageMessage.Caption, ticket.MediaImage
	case m.DocumentMessage != nil && m.DocumentMessage.Caption != "":
		return m.DocumentMessage.Caption, ticket.MediaDocument
	case m.ImageMessage != nil:
		return "", ticket.MediaImage
	case m.DocumentMessage != nil:
		return "", ticket.MediaDocument
	default:
		return "", ""
	}
}

// NormalizePhone turns a WhatsApp JID such as "5511999990001@s.whatsapp.net"
// into "+5511999990001". It returns "" when the JID has no digits.
func NormalizePhone(jid string) string {
	local, _, _ := strings.Cut(jid, "@")
	return ticket.NormalizePhone(local)
}

// Inbound is a normalized inbound message.
type Inbound struct {
	Instance    string
	MessageID   string
	Phone       string
	ContactName string
	Text        string
	MediaType   ticket.MediaType
}

// Inbound normalizes a messages.upsert payload.
func (p Payload) Inbound() Inbound {
	name := strings.TrimSpace(p.Data.PushName)
	if name == "" {
		name = defaultContactName
	}
	return Inbound{
		Instance:    p.Instance,
		MessageID:   p.Data.Key.ID,
		Phone:       NormalizePhone(p.Data.Key.RemoteJID),
		ContactName: name,
		Text:        p.Data.Message.Text(),
		MediaType:   p.Data.Message.MediaType(),
	}
}

// eventFromPath maps a per-event webhook path segment such as
// "messages-upsert" or "MESSAGES_UPSERT" to its event name.
func eventFromPath(segment string) string {
	s := strings.ToLower(segment)
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ReplaceAll(s, "-", ".")
}
