package relay

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/bwmarrin/discordgo"

	"mirrorbot/internal/domain"
	"mirrorbot/internal/journal"
	"mirrorbot/internal/mapping"
	"mirrorbot/internal/metrics"
)

const (
	maxContentLen        = 2000
	truncationMarker     = "..."
	maxEmbedsPerMessage  = 10
	fallbackEmptyContent = "*no message content*"
)

// DeliveryJournal records delivered relays. A nil journal disables recording.
type DeliveryJournal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// DispatcherConfig wires the dispatcher's collaborators.
type DispatcherConfig struct {
	Target   TargetClient
	Webhooks *Directory
	Fetcher  *Fetcher
	Resolver *Resolver
	Mappings *mapping.Store

	// SourceChannelName looks up a source channel's name for log lines and
	// fallback attribution. Best-effort; may be nil.
	SourceChannelName func(channelID string) string

	Journal DeliveryJournal
	Metrics *metrics.Collector
	// Notify sends an operator alert; may be nil.
	Notify func(text string)

	PrefixFormat       string
	IncludeEmbeds      bool
	IncludeAttachments bool
	LogMessages        bool
	Logger             *slog.Logger
}

// Dispatcher re-emits one inbound message as one outbound message, through a
// channel webhook when possible and as a plain bot message otherwise. Every
// failure is terminal for that message: logged, counted, dropped. No retries.
type Dispatcher struct {
	cfg DispatcherConfig

	relayed   *metrics.Counter
	fallbacks *metrics.Counter
	dropped   *metrics.Counter

	// target channels we have already alerted the operator about.
	alerted map[string]bool
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default
	}
	return &Dispatcher{
		cfg:       cfg,
		relayed:   cfg.Metrics.Counter("mirrorbot_relayed_total", "Messages mirrored to the target server", `path="webhook"`),
		fallbacks: cfg.Metrics.Counter("mirrorbot_relayed_total", "Messages mirrored to the target server", `path="fallback"`),
		dropped:   cfg.Metrics.Counter("mirrorbot_dropped_total", "Messages that could not be delivered", ""),
		alerted:   make(map[string]bool),
	}
}

// Run consumes the bus until it closes or ctx is cancelled. Panics inside a
// dispatch are contained here: the message is dropped and the loop goes on.
func (d *Dispatcher) Run(ctx context.Context, b domain.MessageBus) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-b.Subscribe():
			if !ok {
				return
			}
			d.safeDispatch(ctx, msg)
		}
	}
}

func (d *Dispatcher) safeDispatch(ctx context.Context, msg domain.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.dropped.Inc()
			d.cfg.Logger.Error("dispatch panicked, message dropped",
				"channel_id", msg.ChannelID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	d.Dispatch(ctx, msg)
}

// Dispatch relays one filter-approved message.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.InboundMessage) {
	targetID, ok := d.cfg.Mappings.Resolve(msg.ChannelID)
	if !ok {
		// Mapping removed between filter and dispatch.
		return
	}

	targetChannel, err := d.cfg.Target.Channel(targetID)
	if err != nil {
		d.dropped.Inc()
		d.cfg.Logger.Error("target channel not found", "channel_id", targetID, "err", err)
		return
	}

	hook := d.cfg.Webhooks.GetOrCreate(targetID)

	content := composeContent(d.cfg.PrefixFormat, msg.Content)

	var embeds []*discordgo.MessageEmbed
	if d.cfg.IncludeEmbeds && len(msg.Embeds) > 0 {
		embeds = msg.Embeds
		if len(embeds) > maxEmbedsPerMessage {
			embeds = embeds[:maxEmbedsPerMessage]
		}
	}

	var files []domain.FilePayload
	if d.cfg.IncludeAttachments && len(msg.Attachments) > 0 {
		files = d.cfg.Fetcher.Fetch(ctx, msg.Attachments)
	}

	displayName, avatarURL := d.cfg.Resolver.Resolve(msg.Author)

	path := "webhook"
	if hook != nil {
		err = d.sendWebhook(hook, content, displayName, avatarURL, embeds, files)
	} else {
		path = "fallback"
		d.alertFallback(targetID)
		err = d.sendFallback(targetID, msg, files)
	}
	if err != nil {
		d.dropped.Inc()
		d.cfg.Logger.Error("relay send failed", "path", path, "channel_id", targetID, "err", err)
		return
	}

	if path == "webhook" {
		d.relayed.Inc()
	} else {
		d.fallbacks.Inc()
	}

	if d.cfg.Journal != nil {
		entry := journal.Entry{
			SourceChannelID: msg.ChannelID,
			TargetChannelID: targetID,
			AuthorID:        msg.Author.ID,
			AuthorName:      msg.Author.Username,
			Path:            path,
			ContentLen:      len(msg.Content),
			Attachments:     len(msg.Attachments),
			Embeds:          len(embeds),
		}
		if err := d.cfg.Journal.Record(ctx, entry); err != nil {
			d.cfg.Logger.Warn("journal record failed", "err", err)
		}
	}

	if d.cfg.LogMessages {
		d.cfg.Logger.Info("relayed message",
			"author", authorName(msg.Author),
			"source_channel", d.sourceChannelName(msg.ChannelID),
			"target_channel", targetChannel.Name,
			"path", path,
			"attachments", len(files),
			"embeds", len(embeds),
		)
	}
}

// sendWebhook delivers through the channel webhook, impersonating the
// original author. Fire and forget: wait=false, no message ID is read back.
func (d *Dispatcher) sendWebhook(hook *discordgo.Webhook, content, displayName, avatarURL string, embeds []*discordgo.MessageEmbed, files []domain.FilePayload) error {
	params := &discordgo.WebhookParams{
		Username:  displayName,
		AvatarURL: avatarURL,
		Embeds:    embeds,
		Files:     toDiscordFiles(files),
	}
	if strings.TrimSpace(content) != "" {
		params.Content = content
	}
	_, err := d.cfg.Target.WebhookExecute(hook.ID, hook.Token, false, params)
	return err
}

// sendFallback delivers as the bot's own identity with an inline attribution
// line. Embeds are not carried on this path.
func (d *Dispatcher) sendFallback(targetID string, msg domain.InboundMessage, files []domain.FilePayload) error {
	body := msg.Content
	if body == "" {
		body = fallbackEmptyContent
	}
	attribution := fmt.Sprintf("**%s** (from #%s):\n%s",
		authorName(msg.Author), d.sourceChannelName(msg.ChannelID), d.cfg.PrefixFormat)
	content := composeContent(attribution, body)

	_, err := d.cfg.Target.ChannelMessageSendComplex(targetID, &discordgo.MessageSend{
		Content: content,
		Files:   toDiscordFiles(files),
	})
	return err
}

func (d *Dispatcher) alertFallback(targetID string) {
	if d.cfg.Notify == nil || d.alerted[targetID] {
		return
	}
	d.alerted[targetID] = true
	d.cfg.Notify(fmt.Sprintf("mirrorbot: no webhook available in channel %s, relaying as plain bot messages", targetID))
}

func (d *Dispatcher) sourceChannelName(channelID string) string {
	if d.cfg.SourceChannelName == nil {
		return "unknown"
	}
	return d.cfg.SourceChannelName(channelID)
}

func authorName(a domain.Author) string {
	if a.Username != "" {
		return a.Username
	}
	return "Unknown"
}

// composeContent prepends the configured prefix and truncates to Discord's
// 2000-character content limit with a trailing marker. The limit counts
// characters, not bytes; a byte cut could split a rune mid-sequence and the
// API rejects invalid UTF-8.
func composeContent(prefix, content string) string {
	out := prefix + content
	runes := []rune(out)
	if len(runes) > maxContentLen {
		out = string(runes[:maxContentLen-len(truncationMarker)]) + truncationMarker
	}
	return out
}

func toDiscordFiles(files []domain.FilePayload) []*discordgo.File {
	if len(files) == 0 {
		return nil
	}
	out := make([]*discordgo.File, 0, len(files))
	for _, f := range files {
		out = append(out, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	return out
}
