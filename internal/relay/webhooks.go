package relay

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// TargetClient is the subset of the bot session the relay needs on the send
// side. *discordgo.Session satisfies it.
type TargetClient interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelWebhooks(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Webhook, error)
	WebhookCreate(channelID, name, avatar string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
	Webhook(webhookID string, options ...discordgo.RequestOption) (*discordgo.Webhook, error)
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Directory caches one webhook handle per target channel. Handles are
// validated lazily: every lookup re-probes the cached webhook and evicts it
// when the remote no longer knows it, then recreates within the same call.
type Directory struct {
	client TargetClient
	name   string
	logger *slog.Logger

	// The dispatch loop is single-goroutine, but the admin test command
	// reaches the cache from the bot session's event goroutine, so access
	// is serialized here.
	mu    sync.Mutex
	cache map[string]*discordgo.Webhook
}

func NewDirectory(client TargetClient, name string, logger *slog.Logger) *Directory {
	return &Directory{
		client: client,
		name:   name,
		logger: logger,
		cache:  make(map[string]*discordgo.Webhook),
	}
}

// GetOrCreate returns a usable webhook for the channel, or nil when none can
// be obtained. nil means "use the fallback path", never a fatal condition.
func (d *Directory) GetOrCreate(channelID string) *discordgo.Webhook {
	d.mu.Lock()
	defer d.mu.Unlock()

	if hook, ok := d.cache[channelID]; ok {
		if _, err := d.client.Webhook(hook.ID); err == nil {
			return hook
		}
		d.logger.Info("cached webhook stale, recreating", "channel_id", channelID)
		delete(d.cache, channelID)
	}

	hook, err := d.lookupOrCreate(channelID)
	if err != nil {
		if isPermissionError(err) {
			d.logger.Error("no permission to manage webhooks", "channel_id", channelID)
		} else {
			d.logger.Error("webhook lookup failed", "channel_id", channelID, "err", err)
		}
		return nil
	}

	d.cache[channelID] = hook
	return hook
}

func (d *Directory) lookupOrCreate(channelID string) (*discordgo.Webhook, error) {
	hooks, err := d.client.ChannelWebhooks(channelID)
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		if h.Name == d.name {
			return h, nil
		}
	}

	hook, err := d.client.WebhookCreate(channelID, d.name, "")
	if err != nil {
		return nil, err
	}
	d.logger.Info("created webhook", "channel_id", channelID, "name", d.name)
	return hook, nil
}

func isPermissionError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusForbidden
	}
	return false
}
