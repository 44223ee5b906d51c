package relay

import (
	"mirrorbot/internal/domain"
	"mirrorbot/internal/mapping"
)

// Filter decides whether an inbound event qualifies for mirroring. It runs
// once per event the passive connection observes, so it must stay cheap and
// side-effect free.
type Filter struct {
	sourceServerID string
	filterBots     bool
	mappings       *mapping.Store

	// selfID returns the passive account's own ID, or "" when it is not
	// known yet. Self-exclusion is best-effort: an unknown ID skips the
	// check rather than rejecting the event.
	selfID func() string
}

func NewFilter(sourceServerID string, filterBots bool, mappings *mapping.Store, selfID func() string) *Filter {
	if selfID == nil {
		selfID = func() string { return "" }
	}
	return &Filter{
		sourceServerID: sourceServerID,
		filterBots:     filterBots,
		mappings:       mappings,
		selfID:         selfID,
	}
}

// ShouldMirror reports whether msg should be relayed.
func (f *Filter) ShouldMirror(msg *domain.InboundMessage) bool {
	if msg == nil || !msg.HasPayload() {
		return false
	}
	if msg.GuildID != f.sourceServerID {
		return false
	}
	if _, ok := f.mappings.Resolve(msg.ChannelID); !ok {
		return false
	}
	if f.filterBots && msg.Author.Bot {
		return false
	}
	if self := f.selfID(); self != "" && msg.Author.ID == self {
		return false
	}
	return true
}
