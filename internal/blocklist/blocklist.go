// Package blocklist decides whether a post's plain text matches any entry of
// an ordered blocklist.
package blocklist

import (
	"log/slog"
	"regexp"
	"strings"

	"threadrelay/internal/logging"
	"threadrelay/internal/textutil"
)

// Mode selects how an entry's pattern is compared with the text.
type Mode string

const (
	ModeSubstring Mode = "substring"
	ModePrefix    Mode = "prefix"
	ModeSuffix    Mode = "suffix"
	ModeRegex     Mode = "regex"
)

// Entry is one blocklist rule.
type Entry struct {
	Pattern string
	Mode    Mode
}

// IsBlocked reports whether text matches any entry. Entries are evaluated in
// order and the first match wins. Invalid regex entries never match.
func IsBlocked(text string, entries []Entry) bool {
	return Filter{}.IsBlocked(text, entries)
}

// Filter evaluates entries with optional width folding and logs invalid
// patterns to Logger.
type Filter struct {
	Logger    *slog.Logger
	FoldWidth bool
}

// IsBlocked reports whether text matches any entry.
func (f Filter) IsBlocked(text string, entries []Entry) bool {
	if len(entries) == 0 {
		return false
	}
	folded := text
	if f.FoldWidth {
		folded = textutil.FoldWidth(text)
	}
	for _, entry := range entries {
		if entry.Pattern == "" {
			continue
		}
		if entry.Mode == ModeRegex {
			// Compiled per call, never cached.
			re, err := regexp.Compile(entry.Pattern)
			if err != nil {
				logging.WarnWithContext(f.Logger, "blocklist pattern ignored", "blocklist_invalid_pattern",
					logging.String("pattern", entry.Pattern),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix the regex in blocklist.entries"),
					logging.String(logging.FieldImpact, "entry never matches"),
				)
				continue
			}
			if re.MatchString(text) {
				return true
			}
			continue
		}
		pattern := entry.Pattern
		target := text
		if f.FoldWidth {
			pattern = textutil.FoldWidth(pattern)
			target = folded
		}
		if matches(entry.Mode, target, pattern) {
			return true
		}
	}
	return false
}

func matches(mode Mode, text, pattern string) bool {
	switch mode {
	case ModePrefix:
		return strings.HasPrefix(text, pattern)
	case ModeSuffix:
		return strings.HasSuffix(text, pattern)
	default:
		return strings.Contains(text, pattern)
	}
}

// ParseMode maps a configured mode name onto a Mode. Unknown names and the
// legacy "partial" spelling map to substring.
func ParseMode(value string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModePrefix:
		return ModePrefix
	case ModeSuffix:
		return ModeSuffix
	case ModeRegex:
		return ModeRegex
	default:
		return ModeSubstring
	}
}
