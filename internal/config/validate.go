package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateSpeech(); err != nil {
		return err
	}
	if err := c.validateOverlay(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateBlocklist(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFeed() error {
	parsed, err := url.Parse(c.Feed.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("feed.base_url must be an absolute URL, got %q", c.Feed.BaseURL)
	}
	if c.Feed.RequestTimeout < 0 {
		return errors.New("feed.request_timeout must be non-negative")
	}
	return nil
}

func (c *Config) validateSpeech() error {
	if err := ValidatePort(c.Speech.Port); err != nil {
		return fmt.Errorf("speech.port must be between 0 and 65535: %w", err)
	}
	switch c.Speech.StartPosition {
	case "newest", "beginning":
	case "reply":
		// Auto-start has no reply number and falls back to newest.
	default:
		return fmt.Errorf("speech.start_position must be newest, beginning, or reply, got %q", c.Speech.StartPosition)
	}
	if c.Speech.PostIntervalMillis < 0 {
		return errors.New("speech.post_interval_ms must be non-negative")
	}
	if c.Speech.RequestTimeout < 0 {
		return errors.New("speech.request_timeout must be non-negative")
	}
	return nil
}

func (c *Config) validateOverlay() error {
	parsed, err := url.Parse(c.Overlay.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("overlay.endpoint must be an absolute URL, got %q", c.Overlay.Endpoint)
	}
	if c.Overlay.SendIntervalMillis < 0 {
		return errors.New("overlay.send_interval_ms must be non-negative")
	}
	if c.Overlay.RequestTimeout < 0 {
		return errors.New("overlay.request_timeout must be non-negative")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if strings.Contains(c.Archive.PathTemplate, "..") {
		return fmt.Errorf("archive.path_template must not contain '..', got %q", c.Archive.PathTemplate)
	}
	if c.Archive.DownloadAllIntervalMillis < 0 {
		return errors.New("archive.download_all_interval_ms must be non-negative")
	}
	if c.Archive.RequestTimeout < 0 {
		return errors.New("archive.request_timeout must be non-negative")
	}
	return nil
}

func (c *Config) validateBlocklist() error {
	for i, entry := range c.Blocklist.Entries {
		switch entry.Mode {
		case "substring", "prefix", "suffix", "regex":
		default:
			return fmt.Errorf("blocklist.entries[%d].mode must be substring, prefix, suffix, or regex, got %q", i, entry.Mode)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// PortRangeMessage is shown when a relay port is outside 0-65535.
const PortRangeMessage = "ポート番号が不正です。0～65535の範囲で入力してください。"

// ReplyRangeMessage is shown when a start reply number is outside 1-1000.
const ReplyRangeMessage = "1～1000の範囲で入力してください。"

// ReplyRequiredMessage is shown when the reply start position lacks a number.
const ReplyRequiredMessage = "指定レス番号を入力してください。"

// MaxStartReplyNumber bounds the start reply number input.
const MaxStartReplyNumber = 1000

// ValidatePort checks a relay port value.
func ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return errors.New(PortRangeMessage)
	}
	return nil
}

// ValidateStartReplyNumber checks a start reply number value.
func ValidateStartReplyNumber(n int) error {
	if n < 1 || n > MaxStartReplyNumber {
		return errors.New(ReplyRangeMessage)
	}
	return nil
}
