package domain

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

// Author is a snapshot of a source-side message author. Optional fields
// are left empty when the gateway payload omits them; default resolution
// (fallback name, default avatar) happens in the identity resolver, not here.
type Author struct {
	ID            string
	Username      string
	GlobalName    string
	AvatarID      string
	Discriminator string
	Bot           bool
}

// Attachment describes one file attached to a source message. Size is the
// byte count declared by the gateway payload and is advisory only.
type Attachment struct {
	URL      string
	Filename string
	Size     int
}

// InboundMessage is an immutable snapshot of one source-side message event.
// It lives for exactly one dispatch cycle.
type InboundMessage struct {
	ChannelID   string
	GuildID     string
	Content     string
	Author      Author
	Attachments []Attachment
	// Embeds are relayed unmodified.
	Embeds    []*discordgo.MessageEmbed
	Timestamp time.Time
}

// HasPayload reports whether the message carries anything worth relaying.
func (m *InboundMessage) HasPayload() bool {
	return m.Content != "" || len(m.Attachments) > 0
}

// FilePayload is one fully-buffered attachment ready for re-upload.
type FilePayload struct {
	Name        string
	ContentType string
	Data        []byte
}
