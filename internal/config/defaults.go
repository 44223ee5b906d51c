package config

import "path/filepath"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			BusBuffer: 100,
		},
		Source: SourceConfig{},
		Target: TargetConfig{},
		Relay: RelayConfig{
			ChannelMapping:     FlexChannelMap{},
			WebhookName:        "Mirror Bot",
			IncludeAttachments: true,
			IncludeEmbeds:      true,
			FilterBots:         true,
			PrefixFormat:       "",
			LogMessages:        true,
			DebugAvatars:       false,
			CommandPrefix:      "!mirror_",
			MaxAttachmentMB:    8,
			FetchTimeoutS:      30,
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  filepath.Join(DefaultConfigDir(), "journal.db"),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    9300,
		},
		Notify: NotifyConfig{
			Telegram: TelegramNotifyConfig{
				Enabled: false,
			},
		},
	}
}
