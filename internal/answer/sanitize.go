package answer

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLen keeps answers short enough to be spoken by the TTS backend.
const DefaultMaxLen = 700

// junkTokens are markup and turn-delimiter remnants that generation backends leak.
var junkTokens = []string{
	"<script", "</script>",
	"<body", "</body>",
	"<html", "</html>",
	"end_of_turn", "start_of_turn",
	"<s>", "</s>",
	"[BOS]", "[EOS]", "[PAD]",
}

var (
	templateSpanRe = regexp.MustCompile(`\$\{.*?\}`)
	bracketRunRe   = regexp.MustCompile(`[{}\[\]()]{3,}`)
	// Hallucinated reference codes such as RZ/Z243679 or GOI-PT-2025.
	idTokenRe   = regexp.MustCompile(`\b[A-Z]{2,}[-/][A-Z0-9-]{5,}\b`)
	punctOnlyRe = regexp.MustCompile(`^[\p{P}\s]+$`)
	spaceRunRe  = regexp.MustCompile(`\s{2,}`)
)

// Sanitizer strips template, markup and code artifacts from generated text
// and bounds its length.
type Sanitizer struct {
	maxLen int
	tokens []string
}

// NewSanitizer returns a sanitizer truncating to maxLen characters. Extra
// tokens are removed literally in addition to the built-in set.
func NewSanitizer(maxLen int, extraTokens ...string) *Sanitizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	tokens := make([]string, 0, len(junkTokens)+len(extraTokens))
	tokens = append(tokens, junkTokens...)
	for _, t := range extraTokens {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return &Sanitizer{maxLen: maxLen, tokens: tokens}
}

// MaxLen reports the configured length cap in characters.
func (s *Sanitizer) MaxLen() int { return s.maxLen }

var defaultSanitizer = NewSanitizer(DefaultMaxLen)

// Sanitize cleans text with the default settings.
func Sanitize(text string) string {
	return defaultSanitizer.Sanitize(text)
}

// Sanitize returns either "" or a trimmed string of at most MaxLen characters
// with no markup or ID-like artifacts. Passes are repeated until the text stops
// changing; every pass only ever shortens the text, so this terminates and the
// result is stable under a second Sanitize call.
func (s *Sanitizer) Sanitize(text string) string {
	for {
		next := s.pass(text)
		if next == text {
			return next
		}
		text = next
	}
}

func (s *Sanitizer) pass(text string) string {
	if text == "" {
		return ""
	}
	t := strings.TrimSpace(strings.ToValidUTF8(text, ""))

	for _, tok := range s.tokens {
		t = strings.ReplaceAll(t, tok, "")
	}
	t = templateSpanRe.ReplaceAllString(t, "")
	t = bracketRunRe.ReplaceAllString(t, " ")
	t = idTokenRe.ReplaceAllString(t, "")

	if punctOnlyRe.MatchString(t) {
		return ""
	}

	t = strings.TrimSpace(spaceRunRe.ReplaceAllString(t, " "))
	return truncateRunes(t, s.maxLen)
}

// truncateRunes cuts s to at most n characters without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
