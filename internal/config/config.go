package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	ArchiveDir string `toml:"archive_dir"`
}

// Feed contains configuration for the thread feed accessor.
type Feed struct {
	BaseURL        string `toml:"base_url"`
	PollInterval   int    `toml:"poll_interval"`
	RequestTimeout int    `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// Speech contains configuration for the speech relay (Bouyomi-chan).
type Speech struct {
	Host                  string `toml:"host"`
	Port                  int    `toml:"port"`
	StartPosition         string `toml:"start_position"`
	AutoStartTitleKeyword string `toml:"auto_start_title_keyword"`
	AutoStartBodyKeyword  string `toml:"auto_start_body_keyword"`
	StartText             string `toml:"start_text"`
	EndText               string `toml:"end_text"`
	ThreadClosedText      string `toml:"thread_closed_text"`
	RevealSpoilers        bool   `toml:"reveal_spoilers"`
	IgnoreLineBreaks      bool   `toml:"ignore_line_breaks"`
	SuppressExclamation   bool   `toml:"suppress_exclamation"`
	PostIntervalMillis    int    `toml:"post_interval_ms"`
	RequestTimeout        int    `toml:"request_timeout"`
}

// Overlay contains configuration for the chat overlay relay (OneComme).
type Overlay struct {
	Endpoint              string `toml:"endpoint"`
	ServiceID             string `toml:"service_id"`
	Name                  string `toml:"name"`
	UserID                string `toml:"user_id"`
	SystemUserID          string `toml:"system_user_id"`
	SystemName            string `toml:"system_name"`
	ProfileImage          string `toml:"profile_image"`
	AutoStartTitleKeyword string `toml:"auto_start_title_keyword"`
	AutoStartBodyKeyword  string `toml:"auto_start_body_keyword"`
	StartText             string `toml:"start_text"`
	EndText               string `toml:"end_text"`
	ThreadClosedText      string `toml:"thread_closed_text"`
	RevealSpoilers        bool   `toml:"reveal_spoilers"`
	IgnoreLineBreaks      bool   `toml:"ignore_line_breaks"`
	SuppressExclamation   bool   `toml:"suppress_exclamation"`
	SendIntervalMillis    int    `toml:"send_interval_ms"`
	RequestTimeout        int    `toml:"request_timeout"`
}

// Stream gates the streaming-support features (overlay relay, thread ID file).
type Stream struct {
	Enabled      bool   `toml:"enabled"`
	SaveThreadID bool   `toml:"save_thread_id"`
	ThreadIDFile string `toml:"thread_id_file"`
}

// Archive contains configuration for attachment archiving.
type Archive struct {
	AutoStartTitleKeyword     string `toml:"auto_start_title_keyword"`
	AutoStartBodyKeyword      string `toml:"auto_start_body_keyword"`
	PathTemplate              string `toml:"path_template"`
	SaveJPG                   bool   `toml:"save_jpg"`
	SaveGIF                   bool   `toml:"save_gif"`
	SavePNG                   bool   `toml:"save_png"`
	SaveWebP                  bool   `toml:"save_webp"`
	SaveSpoilerImages         bool   `toml:"save_spoiler_images"`
	StartText                 string `toml:"start_text"`
	EndText                   string `toml:"end_text"`
	SavedText                 string `toml:"saved_text"`
	DownloadAllIntervalMillis int    `toml:"download_all_interval_ms"`
	RequestTimeout            int    `toml:"request_timeout"`
}

// BlocklistEntry is one ordered blocklist rule.
type BlocklistEntry struct {
	Pattern string `toml:"pattern"`
	Mode    string `toml:"mode"`
}

// Blocklist contains the blocklist filter configuration.
type Blocklist struct {
	Enabled   bool             `toml:"enabled"`
	FoldWidth bool             `toml:"fold_width"`
	Entries   []BlocklistEntry `toml:"entries"`
}

// Notifications contains configuration for ntfy push notices.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for threadrelay.
//
// Configuration sections by subsystem:
//   - Paths: daemon state directory and archive root
//   - Feed: thread page polling
//   - Speech: Bouyomi-chan relay, announcement texts, and speech text rules
//   - Overlay: OneComme relay, identities, and overlay text rules
//   - Stream: streaming-support gate and thread ID file
//   - Archive: attachment archiving filters and announcement texts
//   - Blocklist: ordered blocklist entries
//   - Notifications: ntfy push settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Feed          Feed          `toml:"feed"`
	Speech        Speech        `toml:"speech"`
	Overlay       Overlay       `toml:"overlay"`
	Stream        Stream        `toml:"stream"`
	Archive       Archive       `toml:"archive"`
	Blocklist     Blocklist     `toml:"blocklist"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/threadrelay/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/threadrelay/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("threadrelay.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The archive root is created on a best-effort basis so the daemon can run
// when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.StateDir, err)
	}
	if strings.TrimSpace(c.Paths.ArchiveDir) != "" {
		_ = os.MkdirAll(c.Paths.ArchiveDir, 0o755)
	}
	return nil
}

// Clone returns a deep copy that can be modified without affecting c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Blocklist.Entries != nil {
		clone.Blocklist.Entries = make([]BlocklistEntry, len(c.Blocklist.Entries))
		copy(clone.Blocklist.Entries, c.Blocklist.Entries)
	}
	return &clone
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "threadrelay.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "threadrelay.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "threadrelay.pid")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.StateDir, "threadrelay.log")
}

// LedgerPath returns the archive ledger database location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "archive.db")
}

// PollDuration returns the feed polling interval.
func (f Feed) PollDuration() time.Duration {
	return time.Duration(f.PollInterval) * time.Second
}

// Timeout returns the feed request timeout.
func (f Feed) Timeout() time.Duration {
	return secondsOr(f.RequestTimeout, defaultRequestTimeout)
}

// PostInterval returns the pause inserted after each relayed live post.
func (s Speech) PostInterval() time.Duration {
	return time.Duration(s.PostIntervalMillis) * time.Millisecond
}

// Timeout returns the speech relay request timeout.
func (s Speech) Timeout() time.Duration {
	return secondsOr(s.RequestTimeout, defaultRelayTimeout)
}

// SendInterval returns the minimum spacing between overlay sends.
func (o Overlay) SendInterval() time.Duration {
	return time.Duration(o.SendIntervalMillis) * time.Millisecond
}

// Timeout returns the overlay relay request timeout.
func (o Overlay) Timeout() time.Duration {
	return secondsOr(o.RequestTimeout, defaultRelayTimeout)
}

// DownloadAllInterval returns the pause after each post archived by a bulk download.
func (a Archive) DownloadAllInterval() time.Duration {
	return time.Duration(a.DownloadAllIntervalMillis) * time.Millisecond
}

// Timeout returns the archive download timeout.
func (a Archive) Timeout() time.Duration {
	return secondsOr(a.RequestTimeout, defaultArchiveTimeout)
}

// Timeout returns the ntfy request timeout.
func (n Notifications) Timeout() time.Duration {
	return secondsOr(n.RequestTimeout, defaultRequestTimeout)
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
