package bus

import "time"

// InboundMessage is a user question received from a chat surface.
type InboundMessage struct {
	Channel   ChannelType
	SenderID  string // user identifier within the channel
	ChatID    string // chat / DM / client identifier
	Content   string
	Timestamp time.Time
	Metadata  map[string]any // channel-specific extra data (message_id, username, …)
}

// NewInboundMessage creates an InboundMessage timestamped now.
func NewInboundMessage(channel ChannelType, senderID, chatID, content string) InboundMessage {
	return InboundMessage{
		Channel:   channel,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// SessionKey returns the key used to look up the channel's conversation.
// Format: "channel:chat_id".
func (m InboundMessage) SessionKey() string {
	return string(m.Channel) + ":" + m.ChatID
}

// ContentPreview returns a short snippet of the message content for logging.
func (m InboundMessage) ContentPreview() string {
	preview := m.Content
	if len(preview) > 80 {
		preview = preview[:80] + "..."
	}
	return preview
}

// OutboundMessage is a response to be sent back through a channel.
type OutboundMessage struct {
	Channel  ChannelType
	ChatID   string
	Content  string
	ReplyTo  string         // original message ID to quote/reply to (optional)
	Metadata map[string]any // channel-specific hints (parse_mode, …)
}

func NewOutboundMessage(channel ChannelType, chatID, content string) OutboundMessage {
	return OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
	}
}
