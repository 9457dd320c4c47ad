// Package lang classifies the writing system of user input.
//
// The classification is coarse: it only looks at which Unicode blocks are
// present, in a fixed priority order, and is used to pick reply hints and as
// an offline fallback when no translation service is configured.
package lang

import "unicode"

// Script is the detected writing system of a piece of text.
type Script string

const (
	ScriptUnknown    Script = "unknown"
	ScriptTelugu     Script = "telugu"
	ScriptKannada    Script = "kannada"
	ScriptDevanagari Script = "devanagari"
	ScriptLatin      Script = "english"
)

var (
	telugu     = &unicode.RangeTable{R16: []unicode.Range16{{Lo: 0x0C00, Hi: 0x0C7F, Stride: 1}}}
	kannada    = &unicode.RangeTable{R16: []unicode.Range16{{Lo: 0x0C80, Hi: 0x0CFF, Stride: 1}}}
	devanagari = &unicode.RangeTable{R16: []unicode.Range16{{Lo: 0x0900, Hi: 0x097F, Stride: 1}}}
)

// DetectScript returns the first script found in priority order
// Telugu, Kannada, Devanagari, Latin.
func DetectScript(text string) Script {
	if text == "" {
		return ScriptUnknown
	}
	var hasKannada, hasDevanagari, hasLatin bool
	for _, r := range text {
		switch {
		case unicode.Is(telugu, r):
			return ScriptTelugu
		case unicode.Is(kannada, r):
			hasKannada = true
		case unicode.Is(devanagari, r):
			hasDevanagari = true
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			hasLatin = true
		}
	}
	switch {
	case hasKannada:
		return ScriptKannada
	case hasDevanagari:
		return ScriptDevanagari
	case hasLatin:
		return ScriptLatin
	}
	return ScriptUnknown
}

// Code maps a script to the ISO-639-1 code of the language most commonly
// written in it. Unknown scripts map to "".
func (s Script) Code() string {
	switch s {
	case ScriptTelugu:
		return "te"
	case ScriptKannada:
		return "kn"
	case ScriptDevanagari:
		return "hi"
	case ScriptLatin:
		return "en"
	}
	return ""
}

// DetectLanguage is DetectScript followed by Code, defaulting to fallback.
func DetectLanguage(text, fallback string) string {
	if code := DetectScript(text).Code(); code != "" {
		return code
	}
	return fallback
}
