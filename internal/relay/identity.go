package relay

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"mirrorbot/internal/domain"
)

const (
	cdnBase        = "https://cdn.discordapp.com"
	maxUsernameLen = 80
)

// Resolver derives the display name and avatar URL used when re-emitting a
// message through a webhook. It only builds URLs; it never checks that they
// resolve.
type Resolver struct {
	debugAvatars bool
	logger       *slog.Logger
}

func NewResolver(debugAvatars bool, logger *slog.Logger) *Resolver {
	return &Resolver{debugAvatars: debugAvatars, logger: logger}
}

// Resolve returns the display name and avatar URL for an author. The avatar
// URL is empty when the author carries no ID at all.
func (r *Resolver) Resolve(a domain.Author) (string, string) {
	if r.debugAvatars {
		r.logger.Debug("resolving author identity",
			"id", a.ID,
			"username", a.Username,
			"global_name", a.GlobalName,
			"avatar_id", a.AvatarID,
			"discriminator", a.Discriminator,
		)
	}
	return DisplayName(a), AvatarURL(a)
}

// DisplayName picks the author's global display name, falling back to the
// username and finally a literal "Unknown", capped at Discord's 80-character
// webhook username limit.
func DisplayName(a domain.Author) string {
	name := a.GlobalName
	if name == "" {
		name = a.Username
	}
	if name == "" {
		name = "Unknown"
	}
	// The 80-character webhook username limit counts characters, not bytes.
	if runes := []rune(name); len(runes) > maxUsernameLen {
		name = string(runes[:maxUsernameLen])
	}
	return name
}

// AvatarURL builds the CDN URL for the author's avatar. Custom avatars use
// the animated .gif form when the avatar ID carries the a_ prefix. Authors
// without a custom avatar get one of the five default avatars, selected by
// discriminator mod 5, or ID mod 5 for new-style accounts without a
// discriminator.
func AvatarURL(a domain.Author) string {
	if a.ID == "" {
		return ""
	}
	if a.AvatarID != "" {
		ext := "png"
		if strings.HasPrefix(a.AvatarID, "a_") {
			ext = "gif"
		}
		return fmt.Sprintf("%s/avatars/%s/%s.%s", cdnBase, a.ID, a.AvatarID, ext)
	}
	return fmt.Sprintf("%s/embed/avatars/%d.png", cdnBase, defaultAvatarIndex(a))
}

func defaultAvatarIndex(a domain.Author) uint64 {
	if a.Discriminator != "" && a.Discriminator != "0" && a.Discriminator != "0000" {
		if d, err := strconv.ParseUint(a.Discriminator, 10, 64); err == nil {
			return d % 5
		}
	}
	id, err := strconv.ParseUint(a.ID, 10, 64)
	if err != nil {
		return 0
	}
	return id % 5
}
