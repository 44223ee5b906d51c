package relay

import (
	"testing"

	"mirrorbot/internal/domain"
	"mirrorbot/internal/mapping"
)

const testSourceGuild = "1131000554005467206"

func baseMessage() domain.InboundMessage {
	return domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   "hi",
		Author:    domain.Author{ID: "1", Username: "bob"},
	}
}

func newTestFilter(filterBots bool, selfID string) *Filter {
	store := mapping.NewStore(map[string]string{"A": "100"})
	return NewFilter(testSourceGuild, filterBots, store, func() string { return selfID })
}

func TestShouldMirror_Accepts(t *testing.T) {
	f := newTestFilter(true, "")
	msg := baseMessage()
	if !f.ShouldMirror(&msg) {
		t.Fatal("qualifying message should mirror")
	}
}

func TestShouldMirror_RejectsEmptyPayload(t *testing.T) {
	f := newTestFilter(true, "")
	msg := baseMessage()
	msg.Content = ""
	msg.Attachments = nil
	if f.ShouldMirror(&msg) {
		t.Fatal("message with no text and no attachments should not mirror")
	}

	// Attachments alone are a payload.
	msg.Attachments = []domain.Attachment{{URL: "http://x/y.png", Filename: "y.png"}}
	if !f.ShouldMirror(&msg) {
		t.Fatal("attachment-only message should mirror")
	}
}

func TestShouldMirror_RejectsWrongGuild(t *testing.T) {
	f := newTestFilter(true, "")
	msg := baseMessage()
	msg.GuildID = "999"
	if f.ShouldMirror(&msg) {
		t.Fatal("message from another server should not mirror")
	}
}

func TestShouldMirror_RejectsUnmappedChannel(t *testing.T) {
	f := newTestFilter(true, "")
	msg := baseMessage()
	msg.ChannelID = "Z"
	if f.ShouldMirror(&msg) {
		t.Fatal("unmapped channel should not mirror")
	}
}

func TestShouldMirror_BotFilter(t *testing.T) {
	msg := baseMessage()
	msg.Author.Bot = true

	if newTestFilter(true, "").ShouldMirror(&msg) {
		t.Fatal("bot author should not mirror when filtering is on")
	}
	if !newTestFilter(false, "").ShouldMirror(&msg) {
		t.Fatal("bot author alone must not reject when filtering is off")
	}
}

func TestShouldMirror_SelfExclusion(t *testing.T) {
	msg := baseMessage()

	if newTestFilter(true, "1").ShouldMirror(&msg) {
		t.Fatal("own message should not mirror")
	}

	// Unknown own ID skips the check rather than rejecting.
	if !newTestFilter(true, "").ShouldMirror(&msg) {
		t.Fatal("self check must be skipped when own ID is unknown")
	}
}

func TestShouldMirror_NilMessage(t *testing.T) {
	if newTestFilter(true, "").ShouldMirror(nil) {
		t.Fatal("nil message should not mirror")
	}
}

func TestShouldMirror_MappingMutationVisible(t *testing.T) {
	store := mapping.NewStore(nil)
	f := NewFilter(testSourceGuild, true, store, nil)
	msg := baseMessage()

	if f.ShouldMirror(&msg) {
		t.Fatal("no mapping yet")
	}
	store.Add("A", "100")
	if !f.ShouldMirror(&msg) {
		t.Fatal("runtime-added mapping should be visible to the filter")
	}
}
