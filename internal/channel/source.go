package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"mirrorbot/internal/domain"
	"mirrorbot/internal/relay"
)

// Source is the passive read side: a user-token gateway connection that
// observes the source server and feeds qualifying messages onto the bus.
// Its event callbacks run on the session's own goroutines and never block;
// dispatch happens on the consumer side of the bus.
type Source struct {
	serverID string
	session  *discordgo.Session
	logger   *slog.Logger
	ready    atomic.Bool
}

type SourceConfig struct {
	UserToken string
	ServerID  string
	Logger    *slog.Logger
}

// NewSource creates the gateway session. The token is used as-is: this is a
// user credential, not a bot credential, so no "Bot " prefix.
func NewSource(cfg SourceConfig) (*Source, error) {
	session, err := discordgo.New(cfg.UserToken)
	if err != nil {
		return nil, fmt.Errorf("source session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	return &Source{
		serverID: cfg.ServerID,
		session:  session,
		logger:   cfg.Logger,
	}, nil
}

// SelfID returns the passive account's own user ID, or "" before the
// connection is ready. Used for best-effort self-exclusion in the filter.
func (s *Source) SelfID() string {
	if user := s.session.State.User; user != nil {
		return user.ID
	}
	return ""
}

// Ready reports whether the source server was confirmed reachable.
func (s *Source) Ready() bool {
	return s.ready.Load()
}

// ChannelName resolves a source channel's name, best-effort. Returns
// "unknown" on any failure; never errors.
func (s *Source) ChannelName(channelID string) string {
	if ch, err := s.session.State.Channel(channelID); err == nil && ch.Name != "" {
		return ch.Name
	}
	ch, err := s.session.Channel(channelID)
	if err != nil || ch.Name == "" {
		return "unknown"
	}
	return ch.Name
}

// Start opens the gateway connection and relays qualifying events onto the
// bus until ctx is cancelled.
func (s *Source) Start(ctx context.Context, b domain.MessageBus, filter *relay.Filter) error {
	s.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		username := ""
		if r.User != nil {
			username = r.User.Username
		}
		s.logger.Info("source client ready", "user", username)

		// Confirm the source server is visible under this credential.
		// Fail-open: an unconfirmed server is logged, not fatal.
		if len(r.Guilds) == 0 {
			s.logger.Warn("source client reported no servers, assuming reachable", "server_id", s.serverID)
			s.ready.Store(true)
			return
		}
		for _, g := range r.Guilds {
			if g.ID == s.serverID {
				s.logger.Info("connected to source server", "server_id", s.serverID, "name", g.Name)
				s.ready.Store(true)
				return
			}
		}
		s.logger.Error("source server not found under passive credential", "server_id", s.serverID)
	})

	s.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		msg := snapshotMessage(m)
		if !filter.ShouldMirror(&msg) {
			return
		}
		b.Publish(msg)
	})

	if err := s.session.Open(); err != nil {
		return fmt.Errorf("source connect: %w", err)
	}
	s.logger.Info("source client connected")

	<-ctx.Done()
	s.logger.Info("source client disconnecting")
	return s.session.Close()
}

// snapshotMessage copies the gateway payload into an immutable inbound
// snapshot that lives for one dispatch cycle.
func snapshotMessage(m *discordgo.MessageCreate) domain.InboundMessage {
	msg := domain.InboundMessage{
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Embeds:    m.Embeds,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.Author = domain.Author{
			ID:            m.Author.ID,
			Username:      m.Author.Username,
			GlobalName:    m.Author.GlobalName,
			AvatarID:      m.Author.Avatar,
			Discriminator: m.Author.Discriminator,
			Bot:           m.Author.Bot,
		}
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			URL:      att.URL,
			Filename: att.Filename,
			Size:     att.Size,
		})
	}
	return msg
}
