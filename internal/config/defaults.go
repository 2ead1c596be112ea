package config

const (
	defaultStateDir              = "~/.local/share/threadrelay"
	defaultArchiveDir            = "~/Downloads/mebuki_auto_save"
	defaultFeedBaseURL           = "https://mebuki.moe/app/t/"
	defaultFeedPollInterval      = 3
	defaultRequestTimeout        = 15
	defaultRelayTimeout          = 5
	defaultArchiveTimeout        = 60
	defaultUserAgent             = "threadrelay/dev"
	defaultSpeechHost            = "localhost"
	defaultSpeechPort            = 50080
	defaultStartPosition         = "newest"
	defaultSpeechStartText       = "スレッドの読み上げを開始します"
	defaultSpeechEndText         = "スレッドの読み上げを停止します"
	defaultThreadClosedText      = "スレッドが落ちました"
	defaultPostIntervalMillis    = 10
	defaultOverlayEndpoint       = "http://localhost:11180/api/comments"
	defaultOverlayName           = "めぶっきー"
	defaultOverlayUserID         = "mebuki2onecomme_user"
	defaultOverlaySystemUserID   = "mebuki2onecomme_system"
	defaultOverlaySystemName     = "Mebuki2Bouyomi"
	defaultOverlayProfileImage   = "https://raw.githubusercontent.com/unkmn/Mebuki2Bouyomi/refs/heads/main/src/images/mebuki.png"
	defaultOverlayStartText      = "わんコメ連携を開始します"
	defaultOverlayEndText        = "わんコメ連携を停止します"
	defaultSendIntervalMillis    = 50
	defaultThreadIDFile          = "mebuki_thread_id.txt"
	defaultArchivePathTemplate   = "files/${thread_id}"
	defaultArchiveStartText      = "ファイルの自動保存を開始します"
	defaultArchiveEndText        = "ファイルの自動保存を停止します"
	defaultArchiveSavedText      = "ファイルを保存しました"
	defaultDownloadAllIntervalMs = 800
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			ArchiveDir: defaultArchiveDir,
		},
		Feed: Feed{
			BaseURL:        defaultFeedBaseURL,
			PollInterval:   defaultFeedPollInterval,
			RequestTimeout: defaultRequestTimeout,
			UserAgent:      defaultUserAgent,
		},
		Speech: Speech{
			Host:                defaultSpeechHost,
			Port:                defaultSpeechPort,
			StartPosition:       defaultStartPosition,
			StartText:           defaultSpeechStartText,
			EndText:             defaultSpeechEndText,
			ThreadClosedText:    defaultThreadClosedText,
			SuppressExclamation: true,
			PostIntervalMillis:  defaultPostIntervalMillis,
			RequestTimeout:      defaultRelayTimeout,
		},
		Overlay: Overlay{
			Endpoint:            defaultOverlayEndpoint,
			Name:                defaultOverlayName,
			UserID:              defaultOverlayUserID,
			SystemUserID:        defaultOverlaySystemUserID,
			SystemName:          defaultOverlaySystemName,
			ProfileImage:        defaultOverlayProfileImage,
			StartText:           defaultOverlayStartText,
			EndText:             defaultOverlayEndText,
			ThreadClosedText:    defaultThreadClosedText,
			SuppressExclamation: true,
			SendIntervalMillis:  defaultSendIntervalMillis,
			RequestTimeout:      defaultRelayTimeout,
		},
		Stream: Stream{
			ThreadIDFile: defaultThreadIDFile,
		},
		Archive: Archive{
			PathTemplate:              defaultArchivePathTemplate,
			SaveJPG:                   true,
			SaveGIF:                   true,
			SavePNG:                   true,
			SaveWebP:                  true,
			StartText:                 defaultArchiveStartText,
			EndText:                   defaultArchiveEndText,
			SavedText:                 defaultArchiveSavedText,
			DownloadAllIntervalMillis: defaultDownloadAllIntervalMs,
			RequestTimeout:            defaultArchiveTimeout,
		},
		Blocklist: Blocklist{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
