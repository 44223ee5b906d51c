package relay

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"mirrorbot/internal/bus"
	"mirrorbot/internal/domain"
	"mirrorbot/internal/journal"
	"mirrorbot/internal/mapping"
	"mirrorbot/internal/metrics"
)

type recordingJournal struct {
	entries []journal.Entry
}

func (r *recordingJournal) Record(_ context.Context, e journal.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func newTestDispatcher(target *fakeTarget, store *mapping.Store) (*Dispatcher, *recordingJournal) {
	j := &recordingJournal{}
	d := NewDispatcher(DispatcherConfig{
		Target:             target,
		Webhooks:           NewDirectory(target, "Mirror Bot", testLogger()),
		Fetcher:            newTestFetcher(),
		Resolver:           NewResolver(false, testLogger()),
		Mappings:           store,
		SourceChannelName:  func(string) string { return "general" },
		Journal:            j,
		Metrics:            metrics.NewCollector(),
		IncludeEmbeds:      true,
		IncludeAttachments: true,
		LogMessages:        false,
		Logger:             testLogger(),
	})
	return d, j
}

func TestDispatch_WebhookPath(t *testing.T) {
	target := newFakeTarget("100")
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, j := newTestDispatcher(target, store)

	d.Dispatch(context.Background(), domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   "hi",
		Author:    domain.Author{ID: "1", Username: "bob"},
	})

	if len(target.executed) != 1 {
		t.Fatalf("expected exactly one webhook send, got %d", len(target.executed))
	}
	ex := target.executed[0]
	if ex.wait {
		t.Error("webhook send must be fire-and-forget (wait=false)")
	}
	if ex.params.Content != "hi" {
		t.Errorf("content = %q", ex.params.Content)
	}
	if ex.params.Username != "bob" {
		t.Errorf("username = %q", ex.params.Username)
	}
	if ex.params.AvatarURL == "" {
		t.Error("expected a resolved avatar URL")
	}
	if len(target.sent) != 0 {
		t.Error("webhook path must not also send a bot message")
	}

	if len(j.entries) != 1 || j.entries[0].Path != "webhook" {
		t.Fatalf("expected one webhook journal entry, got %+v", j.entries)
	}
}

func TestDispatch_UnmappedChannelSendsNothing(t *testing.T) {
	target := newFakeTarget("100")
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, _ := newTestDispatcher(target, store)

	d.Dispatch(context.Background(), domain.InboundMessage{
		ChannelID: "Z",
		GuildID:   testSourceGuild,
		Content:   "hi",
		Author:    domain.Author{ID: "1", Username: "bob"},
	})

	if len(target.executed) != 0 || len(target.sent) != 0 {
		t.Fatal("unmapped channel must produce zero outbound sends")
	}
}

func TestDispatch_MissingTargetChannelDrops(t *testing.T) {
	target := newFakeTarget() // no channels exist
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, j := newTestDispatcher(target, store)

	d.Dispatch(context.Background(), domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   "hi",
		Author:    domain.Author{ID: "1", Username: "bob"},
	})

	if len(target.executed) != 0 || len(target.sent) != 0 {
		t.Fatal("missing target channel must drop the message")
	}
	if len(j.entries) != 0 {
		t.Fatal("dropped message must not be journaled")
	}
}

func TestDispatch_FallbackPath(t *testing.T) {
	target := newFakeTarget("100")
	target.forbidden["100"] = true
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, j := newTestDispatcher(target, store)

	var alerts []string
	d.cfg.Notify = func(text string) { alerts = append(alerts, text) }

	msg := domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   "hello there",
		Author:    domain.Author{ID: "1", Username: "bob"},
	}
	d.Dispatch(context.Background(), msg)
	d.Dispatch(context.Background(), msg)

	if len(target.executed) != 0 {
		t.Fatal("no webhook available, nothing should go through one")
	}
	if len(target.sent) != 2 {
		t.Fatalf("expected 2 fallback sends, got %d", len(target.sent))
	}
	content := target.sent[0].data.Content
	if !strings.HasPrefix(content, "**bob** (from #general):\n") {
		t.Errorf("fallback should carry an attribution line, got %q", content)
	}
	if !strings.Contains(content, "hello there") {
		t.Errorf("fallback should carry the original text, got %q", content)
	}
	if j.entries[0].Path != "fallback" {
		t.Errorf("journal path = %q", j.entries[0].Path)
	}
	if len(alerts) != 1 {
		t.Errorf("operator should be alerted once per channel, got %d alerts", len(alerts))
	}
}

func TestDispatch_FallbackTruncatesOnRuneBoundary(t *testing.T) {
	target := newFakeTarget("100")
	target.forbidden["100"] = true
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, _ := newTestDispatcher(target, store)

	d.Dispatch(context.Background(), domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   strings.Repeat("ж", 2100),
		Author:    domain.Author{ID: "1", Username: "bob"},
	})

	if len(target.sent) != 1 {
		t.Fatalf("expected 1 fallback send, got %d", len(target.sent))
	}
	content := target.sent[0].data.Content
	if !strings.HasPrefix(content, "**bob** (from #general):\n") {
		t.Errorf("attribution line missing, got %q", content[:40])
	}
	if !utf8.ValidString(content) {
		t.Fatal("fallback truncation produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(content); n != 2000 {
		t.Fatalf("expected 2000 chars, got %d", n)
	}
	if !strings.HasSuffix(content, "...") {
		t.Error("truncated fallback should end with the marker")
	}
}

func TestDispatch_FallbackEmptyContent(t *testing.T) {
	target := newFakeTarget("100")
	target.forbidden["100"] = true
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, _ := newTestDispatcher(target, store)

	d.Dispatch(context.Background(), domain.InboundMessage{
		ChannelID:   "A",
		GuildID:     testSourceGuild,
		Author:      domain.Author{ID: "1", Username: "bob"},
		Attachments: []domain.Attachment{{URL: "http://127.0.0.1:1/x", Filename: "x", Size: 1}},
	})

	if len(target.sent) != 1 {
		t.Fatalf("expected 1 fallback send, got %d", len(target.sent))
	}
	if !strings.Contains(target.sent[0].data.Content, "*no message content*") {
		t.Errorf("empty body should be replaced with a placeholder, got %q", target.sent[0].data.Content)
	}
}

func TestDispatch_EmbedCap(t *testing.T) {
	target := newFakeTarget("100")
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, _ := newTestDispatcher(target, store)

	var embeds []*discordgo.MessageEmbed
	for i := 0; i < 12; i++ {
		embeds = append(embeds, &discordgo.MessageEmbed{Title: "e"})
	}
	d.Dispatch(context.Background(), domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   "hi",
		Author:    domain.Author{ID: "1", Username: "bob"},
		Embeds:    embeds,
	})

	if got := len(target.executed[0].params.Embeds); got != 10 {
		t.Errorf("expected 10 embeds carried, got %d", got)
	}
}

func TestDispatch_EmbedsDisabled(t *testing.T) {
	target := newFakeTarget("100")
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, _ := newTestDispatcher(target, store)
	d.cfg.IncludeEmbeds = false

	d.Dispatch(context.Background(), domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   "hi",
		Author:    domain.Author{ID: "1", Username: "bob"},
		Embeds:    []*discordgo.MessageEmbed{{Title: "e"}},
	})

	if len(target.executed[0].params.Embeds) != 0 {
		t.Error("embeds must not be carried when disabled")
	}
}

func TestComposeContent_Truncation(t *testing.T) {
	body := strings.Repeat("a", 2050)
	got := composeContent("", body)
	if len(got) != 2000 {
		t.Fatalf("expected 2000 chars, got %d", len(got))
	}
	if got[1997:] != "..." {
		t.Errorf("last 3 chars should be the marker, got %q", got[1997:])
	}
	if got[:1997] != body[:1997] {
		t.Error("first 1997 chars should match the original")
	}
}

func TestComposeContent_Prefix(t *testing.T) {
	got := composeContent("[mirror] ", "hi")
	if got != "[mirror] hi" {
		t.Errorf("got %q", got)
	}
}

func TestComposeContent_ShortPassesThrough(t *testing.T) {
	body := strings.Repeat("a", 2000)
	if got := composeContent("", body); got != body {
		t.Error("exactly 2000 chars must not be truncated")
	}
}

func TestComposeContent_CountsCharactersNotBytes(t *testing.T) {
	// 1500 two-byte characters: 3000 bytes, well under the 2000-character cap.
	body := strings.Repeat("я", 1500)
	if got := composeContent("", body); got != body {
		t.Errorf("1500-character body must pass through untouched, got %d chars", utf8.RuneCountInString(got))
	}
}

func TestComposeContent_TruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("я", 2050)
	got := composeContent("", body)
	if !utf8.ValidString(got) {
		t.Fatal("truncation produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != 2000 {
		t.Fatalf("expected 2000 chars, got %d", n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated content should end with the marker, got %q", got[len(got)-12:])
	}
}

func TestDispatch_WhitespaceOnlyContentOmitted(t *testing.T) {
	target := newFakeTarget("100")
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, _ := newTestDispatcher(target, store)

	d.Dispatch(context.Background(), domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   "   ",
		Author:    domain.Author{ID: "1", Username: "bob"},
	})

	if len(target.executed) != 1 {
		t.Fatalf("expected 1 send, got %d", len(target.executed))
	}
	if target.executed[0].params.Content != "" {
		t.Errorf("whitespace-only content should be omitted, got %q", target.executed[0].params.Content)
	}
}

func TestRun_ConsumesBusUntilClose(t *testing.T) {
	target := newFakeTarget("100")
	store := mapping.NewStore(map[string]string{"A": "100"})
	d, _ := newTestDispatcher(target, store)

	b := bus.New(10, testLogger())
	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), b)
		close(done)
	}()

	b.Publish(domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   "hi",
		Author:    domain.Author{ID: "1", Username: "bob"},
	})
	b.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit after bus close")
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if len(target.executed) != 1 {
		t.Fatalf("expected 1 relayed message, got %d", len(target.executed))
	}
}

func TestEndToEnd_FilterPlusDispatch(t *testing.T) {
	target := newFakeTarget("100")
	store := mapping.NewStore(map[string]string{"A": "100"})
	f := NewFilter(testSourceGuild, true, store, nil)
	d, _ := newTestDispatcher(target, store)

	mirror := func(msg domain.InboundMessage) {
		if f.ShouldMirror(&msg) {
			d.Dispatch(context.Background(), msg)
		}
	}

	mirror(domain.InboundMessage{
		ChannelID: "A",
		GuildID:   testSourceGuild,
		Content:   "hi",
		Author:    domain.Author{ID: "1", Username: "bob"},
	})
	mirror(domain.InboundMessage{
		ChannelID: "Z",
		GuildID:   testSourceGuild,
		Content:   "hi",
		Author:    domain.Author{ID: "1", Username: "bob"},
	})

	if len(target.executed) != 1 {
		t.Fatalf("expected exactly one outbound send, got %d", len(target.executed))
	}
	if target.executed[0].params.Content != "hi" || target.executed[0].params.Username != "bob" {
		t.Errorf("unexpected outbound params: %+v", target.executed[0].params)
	}
}
