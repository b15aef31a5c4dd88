package bus

import "time"

// InboundMessage is a message received from a chat channel, destined for the
// agent loop. Transport envelope only: never persisted.
type InboundMessage struct {
	channel   Channel
	senderID  string
	chatID    string
	content   string
	timestamp time.Time
	metadata  map[string]any
}

// NewInboundMessage creates an InboundMessage with Timestamp set to now.
func NewInboundMessage(channel Channel, senderID, chatID, content string) InboundMessage {
	return InboundMessage{
		channel:   channel,
		senderID:  senderID,
		chatID:    chatID,
		content:   content,
		timestamp: time.Now(),
	}
}

func (m InboundMessage) Channel() Channel          { return m.channel }
func (m InboundMessage) SenderID() string          { return m.senderID }
func (m InboundMessage) ChatID() string            { return m.chatID }
func (m InboundMessage) Content() string           { return m.content }
func (m InboundMessage) Timestamp() time.Time      { return m.timestamp }
func (m InboundMessage) Metadata() map[string]any  { return m.metadata }
func (m *InboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

// SessionKey returns the key used to look up the conversation session:
// "{channel}_{chat_id}".
func (m InboundMessage) SessionKey() string {
	return string(m.channel) + "_" + m.chatID
}

// OutboundMessage is a reply to be delivered back through a channel.
// Transport envelope only: never persisted.
type OutboundMessage struct {
	channel  Channel
	chatID   string
	content  string
	media    []string
	metadata map[string]any
}

// NewOutboundMessage creates an OutboundMessage.
func NewOutboundMessage(channel Channel, chatID, content string) OutboundMessage {
	return OutboundMessage{channel: channel, chatID: chatID, content: content}
}

func (m OutboundMessage) Channel() Channel         { return m.channel }
func (m OutboundMessage) ChatID() string           { return m.chatID }
func (m OutboundMessage) Content() string          { return m.content }
func (m OutboundMessage) Media() []string          { return m.media }
func (m OutboundMessage) Metadata() map[string]any { return m.metadata }
func (m *OutboundMessage) SetMetadata(md map[string]any) { m.metadata = md }
func (m *OutboundMessage) SetMedia(media []string)       { m.media = media }
