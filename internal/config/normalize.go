package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFeed()
	c.normalizeSpeech()
	c.normalizeOverlay()
	c.normalizeStream()
	c.normalizeArchive()
	c.normalizeBlocklist()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArchiveDir) == "" {
		c.Paths.ArchiveDir = defaultArchiveDir
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFeed() {
	c.Feed.BaseURL = strings.TrimSpace(c.Feed.BaseURL)
	if c.Feed.BaseURL == "" {
		c.Feed.BaseURL = defaultFeedBaseURL
	}
	if !strings.HasSuffix(c.Feed.BaseURL, "/") {
		c.Feed.BaseURL += "/"
	}
	if c.Feed.PollInterval <= 0 {
		c.Feed.PollInterval = defaultFeedPollInterval
	}
	c.Feed.UserAgent = strings.TrimSpace(c.Feed.UserAgent)
	if c.Feed.UserAgent == "" {
		c.Feed.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeSpeech() {
	c.Speech.Host = strings.TrimSpace(c.Speech.Host)
	if c.Speech.Host == "" {
		c.Speech.Host = defaultSpeechHost
	}
	c.Speech.StartPosition = normalizeStartPosition(c.Speech.StartPosition)
	c.Speech.AutoStartTitleKeyword = strings.TrimSpace(c.Speech.AutoStartTitleKeyword)
	c.Speech.AutoStartBodyKeyword = strings.TrimSpace(c.Speech.AutoStartBodyKeyword)
}

func (c *Config) normalizeOverlay() {
	c.Overlay.Endpoint = strings.TrimSpace(c.Overlay.Endpoint)
	if c.Overlay.Endpoint == "" {
		c.Overlay.Endpoint = defaultOverlayEndpoint
	}
	c.Overlay.ServiceID = strings.TrimSpace(c.Overlay.ServiceID)
	if c.Overlay.ServiceID == "" {
		if value, ok := os.LookupEnv("THREADRELAY_ONECOMME_ID"); ok {
			c.Overlay.ServiceID = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Overlay.Name) == "" {
		c.Overlay.Name = defaultOverlayName
	}
	if strings.TrimSpace(c.Overlay.UserID) == "" {
		c.Overlay.UserID = defaultOverlayUserID
	}
	if strings.TrimSpace(c.Overlay.SystemUserID) == "" {
		c.Overlay.SystemUserID = defaultOverlaySystemUserID
	}
	if strings.TrimSpace(c.Overlay.SystemName) == "" {
		c.Overlay.SystemName = defaultOverlaySystemName
	}
	c.Overlay.AutoStartTitleKeyword = strings.TrimSpace(c.Overlay.AutoStartTitleKeyword)
	c.Overlay.AutoStartBodyKeyword = strings.TrimSpace(c.Overlay.AutoStartBodyKeyword)
}

func (c *Config) normalizeStream() {
	c.Stream.ThreadIDFile = strings.TrimSpace(c.Stream.ThreadIDFile)
	if c.Stream.ThreadIDFile == "" {
		c.Stream.ThreadIDFile = defaultThreadIDFile
	}
}

func (c *Config) normalizeArchive() {
	c.Archive.PathTemplate = strings.Trim(strings.TrimSpace(c.Archive.PathTemplate), "/")
	if c.Archive.PathTemplate == "" {
		c.Archive.PathTemplate = defaultArchivePathTemplate
	}
	c.Archive.AutoStartTitleKeyword = strings.TrimSpace(c.Archive.AutoStartTitleKeyword)
	c.Archive.AutoStartBodyKeyword = strings.TrimSpace(c.Archive.AutoStartBodyKeyword)
}

func (c *Config) normalizeBlocklist() {
	entries := c.Blocklist.Entries[:0:0]
	for _, entry := range c.Blocklist.Entries {
		entry.Mode = NormalizeBlocklistMode(entry.Mode)
		entries = append(entries, entry)
	}
	c.Blocklist.Entries = entries
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeStartPosition(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "newest", "0":
		return "newest"
	case "beginning", "1":
		return "beginning"
	case "reply", "2":
		return "reply"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

// NormalizeBlocklistMode maps configured mode spellings onto the canonical
// names. "partial" is accepted as substring; an empty mode means substring.
func NormalizeBlocklistMode(value string) string {
	switch mode := strings.ToLower(strings.TrimSpace(value)); mode {
	case "", "partial", "substring":
		return "substring"
	default:
		return mode
	}
}
