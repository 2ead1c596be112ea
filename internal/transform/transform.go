// Package transform renders post content trees into the plain-text payloads
// sent to each sink.
//
// Speech, overlay, and notification sinks share one pipeline and differ only
// in their RuleSet. PlainText produces the separate projection the blocklist
// is evaluated against.
package transform

import (
	"html"
	"strings"

	"threadrelay/internal/content"
)

// EmojiRendering selects how custom emoji images are rendered.
type EmojiRendering int

const (
	// AltTextOnly replaces each emoji with its alt text.
	AltTextOnly EmojiRendering = iota
	// PlaceholderRoundTrip restores each emoji as an inline <img> tag.
	PlaceholderRoundTrip
)

// RuleSet configures one sink's rendering.
type RuleSet struct {
	IgnoreLineBreaks    bool
	RevealSpoilers      bool
	SuppressExclamation bool
	Emoji               EmojiRendering
	OmitBareLinks       bool
}

// NotificationRules is the fixed rule set used for notices: spoilers masked,
// emoji as alt text, bare links omitted, lines joined.
func NotificationRules() RuleSet {
	return RuleSet{
		IgnoreLineBreaks:    true,
		SuppressExclamation: true,
		Emoji:               AltTextOnly,
		OmitBareLinks:       true,
	}
}

const (
	// ExclamationPhrase is removed from output when SuppressExclamation is set.
	ExclamationPhrase = "ｷﾀ━━━━━━(ﾟ∀ﾟ)━━━━━━ !!!!!"
	// URLOmittedMarker replaces links whose visible text is a bare URL.
	URLOmittedMarker = "(URL omitted)"
	// SpoilerMask replaces masked spoiler content.
	SpoilerMask = "*****"

	zeroWidthSpace = "\u200b"
	emojiToken     = '\ue000'
	breakToken     = '\ue001'
)

var inputCleaner = strings.NewReplacer(
	zeroWidthSpace, "",
	string(emojiToken), "",
	string(breakToken), "",
)

type emoji struct {
	url string
	alt string
}

// renderer accumulates rendered lines for one pass over a tree.
type renderer struct {
	rules   RuleSet
	hasLink bool
	lines   []strings.Builder
	emojis  []emoji
}

func newRenderer(tree content.Tree, rules RuleSet) *renderer {
	r := &renderer{rules: rules, hasLink: containsLink(tree)}
	r.lines = make([]strings.Builder, 1)
	r.walk(tree)
	return r
}

func (r *renderer) write(s string) {
	r.lines[len(r.lines)-1].WriteString(s)
}

func (r *renderer) walk(tree content.Tree) {
	for _, n := range tree {
		switch v := n.(type) {
		case content.Text:
			r.write(inputCleaner.Replace(v.Value))
		case content.LineBreak:
			if r.rules.IgnoreLineBreaks {
				r.write(" ")
			} else {
				r.lines = append(r.lines, strings.Builder{})
			}
		case content.Image:
			if !v.CustomEmoji {
				continue
			}
			if r.rules.Emoji == PlaceholderRoundTrip {
				r.emojis = append(r.emojis, emoji{url: v.URL, alt: inputCleaner.Replace(v.Alt)})
				r.write(string(emojiToken))
			} else {
				r.write(inputCleaner.Replace(v.Alt))
			}
		case content.Spoiler:
			if r.rules.RevealSpoilers {
				r.walk(v.Children)
			} else {
				r.write(SpoilerMask)
			}
		case content.Quote, content.Code:
			// Never surfaced to any sink.
		case content.Link:
			display := inputCleaner.Replace(v.Display)
			if r.rules.OmitBareLinks && isBareURL(display) {
				r.write(" " + URLOmittedMarker + " ")
			} else {
				r.write(display)
			}
		case content.Preview:
			if !r.hasLink {
				r.walk(v.Children)
			}
		}
	}
}

func (r *renderer) rawLines() []string {
	out := make([]string, len(r.lines))
	for i := range r.lines {
		out[i] = r.lines[i].String()
	}
	return out
}

// restore substitutes emoji tokens in order and finishes the string.
func (r *renderer) finish(text string, emojiIndex *int) string {
	if len(r.emojis) > 0 {
		var b strings.Builder
		for _, c := range text {
			if c != emojiToken {
				b.WriteRune(c)
				continue
			}
			if *emojiIndex < len(r.emojis) {
				e := r.emojis[*emojiIndex]
				b.WriteString(`<img src="` + html.EscapeString(e.url) + `" alt="` + html.EscapeString(e.alt) + `">`)
			}
			*emojiIndex++
		}
		text = b.String()
	}
	text = strings.ReplaceAll(text, string(breakToken), "<br>")
	if r.rules.SuppressExclamation {
		text = strings.ReplaceAll(text, ExclamationPhrase, "")
	}
	return collapse(text)
}

// Transform renders tree as a single payload string. An empty result means
// there is nothing to send.
func Transform(tree content.Tree, rules RuleSet) string {
	r := newRenderer(tree, rules)
	sep := " "
	if rules.Emoji == PlaceholderRoundTrip && !rules.IgnoreLineBreaks {
		sep = " " + string(breakToken)
	}
	idx := 0
	return r.finish(strings.Join(r.rawLines(), sep), &idx)
}

// Lines renders tree as one payload per line. Empty lines are dropped, so the
// result may be empty. With IgnoreLineBreaks the result has at most one entry.
func Lines(tree content.Tree, rules RuleSet) []string {
	r := newRenderer(tree, rules)
	idx := 0
	var out []string
	for _, line := range r.rawLines() {
		if text := r.finish(line, &idx); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// PlainText is the projection the blocklist is evaluated against: every text
// run including quotes, code, spoilers, and link text, with line breaks kept
// as newlines and zero-width spaces removed.
func PlainText(tree content.Tree) string {
	var b strings.Builder
	writePlain(&b, tree)
	return b.String()
}

func writePlain(b *strings.Builder, tree content.Tree) {
	for _, n := range tree {
		switch v := n.(type) {
		case content.Text:
			b.WriteString(strings.ReplaceAll(v.Value, zeroWidthSpace, ""))
		case content.LineBreak:
			b.WriteByte('\n')
		case content.Link:
			b.WriteString(strings.ReplaceAll(v.Display, zeroWidthSpace, ""))
		case content.Spoiler:
			writePlain(b, v.Children)
		case content.Quote:
			writePlain(b, v.Children)
		case content.Code:
			writePlain(b, v.Children)
		case content.Preview:
			writePlain(b, v.Children)
		}
	}
}

func containsLink(tree content.Tree) bool {
	for _, n := range tree {
		switch v := n.(type) {
		case content.Link:
			return true
		case content.Spoiler:
			if containsLink(v.Children) {
				return true
			}
		case content.Preview:
			if containsLink(v.Children) {
				return true
			}
		}
	}
	return false
}

func isBareURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
