package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"mirrorbot/internal/journal"
	"mirrorbot/internal/mapping"
	"mirrorbot/internal/relay"
)

// JournalReader is the read side of the relay journal used by admin
// commands. May be nil when the journal is disabled.
type JournalReader interface {
	Count(ctx context.Context) (int64, error)
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Admin is the runtime command surface on the bot connection: inspect
// status, mutate the channel mapping, and test the webhook path. Every
// command is gated on the caller holding Administrator in the channel.
type Admin struct {
	prefix      string
	client      relay.TargetClient
	mappings    *mapping.Store
	webhooks    *relay.Directory
	journal     JournalReader
	sourceReady func() bool
	targetReady func() bool
	logger      *slog.Logger
}

type AdminConfig struct {
	CommandPrefix string
	Client        relay.TargetClient
	Mappings      *mapping.Store
	Webhooks      *relay.Directory
	Journal       JournalReader
	SourceReady   func() bool
	TargetReady   func() bool
	Logger        *slog.Logger
}

func NewAdmin(cfg AdminConfig) *Admin {
	if cfg.SourceReady == nil {
		cfg.SourceReady = func() bool { return false }
	}
	if cfg.TargetReady == nil {
		cfg.TargetReady = func() bool { return false }
	}
	return &Admin{
		prefix:      cfg.CommandPrefix,
		client:      cfg.Client,
		mappings:    cfg.Mappings,
		webhooks:    cfg.Webhooks,
		journal:     cfg.Journal,
		sourceReady: cfg.SourceReady,
		targetReady: cfg.TargetReady,
		logger:      cfg.Logger,
	}
}

// Register attaches the command handler to the bot session.
func (a *Admin) Register(session *discordgo.Session) {
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		if s.State.User != nil && m.Author.ID == s.State.User.ID {
			return
		}
		if !strings.HasPrefix(m.Content, a.prefix) {
			return
		}

		perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
		if err != nil || perms&discordgo.PermissionAdministrator == 0 {
			a.logger.Debug("ignoring command from non-administrator", "user_id", m.Author.ID)
			return
		}

		fields := strings.Fields(strings.TrimPrefix(m.Content, a.prefix))
		if len(fields) == 0 {
			return
		}
		a.runCommand(m.ChannelID, fields[0], fields[1:])
	})
}

func (a *Admin) runCommand(channelID, cmd string, args []string) {
	a.logger.Info("admin command", "command", cmd, "channel_id", channelID)
	switch cmd {
	case "status":
		a.cmdStatus(channelID)
	case "add":
		a.cmdAdd(channelID, args)
	case "remove":
		a.cmdRemove(channelID, args)
	case "list":
		a.cmdList(channelID)
	case "test_webhook":
		a.cmdTestWebhook(channelID)
	case "history":
		a.cmdHistory(channelID, args)
	default:
		a.reply(channelID, "Unknown command: "+cmd)
	}
}

func (a *Admin) cmdStatus(channelID string) {
	embed := &discordgo.MessageEmbed{
		Title: "Mirror Status",
		Color: 0x00ff00,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User Client", Value: connState(a.sourceReady()), Inline: true},
			{Name: "Bot Client", Value: connState(a.targetReady()), Inline: true},
			{Name: "Channel mappings", Value: strconv.Itoa(a.mappings.Len()), Inline: true},
		},
	}
	if a.journal != nil {
		if n, err := a.journal.Count(context.Background()); err == nil {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "Messages relayed", Value: strconv.FormatInt(n, 10), Inline: true,
			})
		}
	}
	a.replyEmbed(channelID, embed)
}

func (a *Admin) cmdAdd(channelID string, args []string) {
	if len(args) != 2 || !isChannelID(args[0]) || !isChannelID(args[1]) {
		a.reply(channelID, "Usage: "+a.prefix+"add <source_channel_id> <target_channel_id>")
		return
	}
	a.mappings.Add(args[0], args[1])
	a.reply(channelID, fmt.Sprintf("Added mapping: <#%s> -> <#%s>", args[0], args[1]))
}

func (a *Admin) cmdRemove(channelID string, args []string) {
	if len(args) != 1 {
		a.reply(channelID, "Usage: "+a.prefix+"remove <source_channel_id>")
		return
	}
	target, ok := a.mappings.Remove(args[0])
	if !ok {
		a.reply(channelID, "Mapping not found")
		return
	}
	a.reply(channelID, fmt.Sprintf("Removed mapping: <#%s> -> <#%s>", args[0], target))
}

func (a *Admin) cmdList(channelID string) {
	all := a.mappings.All()
	if len(all) == 0 {
		a.reply(channelID, "No active mappings")
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: "Channel mappings",
		Color: 0x0099ff,
	}
	for src, dst := range all {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("<#%s>", src),
			Value: fmt.Sprintf("-> <#%s>", dst),
		})
	}
	a.replyEmbed(channelID, embed)
}

func (a *Admin) cmdTestWebhook(channelID string) {
	hook := a.webhooks.GetOrCreate(channelID)
	if hook == nil {
		a.reply(channelID, "Could not get or create a webhook here")
		return
	}
	_, err := a.client.WebhookExecute(hook.ID, hook.Token, false, &discordgo.WebhookParams{
		Content:   "Webhook test with avatar!",
		Username:  "Test User",
		AvatarURL: "https://cdn.discordapp.com/embed/avatars/0.png",
	})
	if err != nil {
		a.reply(channelID, "Webhook test failed: "+err.Error())
		return
	}
	a.reply(channelID, "Webhook test sent")
}

func (a *Admin) cmdHistory(channelID string, args []string) {
	if a.journal == nil {
		a.reply(channelID, "Journal is disabled")
		return
	}
	limit := 10
	if len(args) == 1 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	entries, err := a.journal.Recent(context.Background(), limit)
	if err != nil {
		a.reply(channelID, "Could not read the journal: "+err.Error())
		return
	}
	if len(entries) == 0 {
		a.reply(channelID, "No relayed messages yet")
		return
	}

	var sb strings.Builder
	sb.WriteString("```\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s  %s -> %s  %s via %s (%d chars, %d files)\n",
			e.CreatedAt.Format("01-02 15:04"),
			e.SourceChannelID, e.TargetChannelID,
			e.AuthorName, e.Path, e.ContentLen, e.Attachments)
	}
	sb.WriteString("```")
	a.reply(channelID, sb.String())
}

func (a *Admin) reply(channelID, text string) {
	if _, err := a.client.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: text}); err != nil {
		a.logger.Error("admin reply failed", "channel_id", channelID, "err", err)
	}
}

func (a *Admin) replyEmbed(channelID string, embed *discordgo.MessageEmbed) {
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	if _, err := a.client.ChannelMessageSendComplex(channelID, msg); err != nil {
		a.logger.Error("admin reply failed", "channel_id", channelID, "err", err)
	}
}

func connState(ready bool) string {
	if ready {
		return "Connected"
	}
	return "Not connected"
}

func isChannelID(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
