package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// Target is the active send side: the bot session that manages webhooks and
// delivers mirrored messages on the target server.
type Target struct {
	serverID string
	session  *discordgo.Session
	logger   *slog.Logger
	ready    atomic.Bool
}

type TargetConfig struct {
	BotToken string
	ServerID string
	Logger   *slog.Logger
}

func NewTarget(cfg TargetConfig) (*Target, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("target session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	return &Target{
		serverID: cfg.ServerID,
		session:  session,
		logger:   cfg.Logger,
	}, nil
}

// Session exposes the underlying session. It satisfies relay.TargetClient.
func (t *Target) Session() *discordgo.Session {
	return t.session
}

// Ready reports whether the target server was confirmed reachable. On
// failure the target simply never marks itself ready; relaying is still
// attempted per-message.
func (t *Target) Ready() bool {
	return t.ready.Load()
}

// Start opens the bot connection and holds it until ctx is cancelled.
func (t *Target) Start(ctx context.Context) error {
	t.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		username := ""
		if r.User != nil {
			username = r.User.Username
		}
		t.logger.Info("bot client ready", "user", username)

		guild, err := s.Guild(t.serverID)
		if err != nil {
			t.logger.Error("target server not found", "server_id", t.serverID, "err", err)
			return
		}
		t.logger.Info("connected to target server", "server_id", t.serverID, "name", guild.Name)
		t.ready.Store(true)
	})

	if err := t.session.Open(); err != nil {
		return fmt.Errorf("target connect: %w", err)
	}
	t.logger.Info("bot client connected")

	<-ctx.Done()
	t.logger.Info("bot client disconnecting")
	return t.session.Close()
}
