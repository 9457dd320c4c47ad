// Package chunker splits document text into overlapping word windows sized
// for embedding.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

const DefaultMaxWords = 400

// Options controls the window size and how many words consecutive windows share.
type Options struct {
	MaxWords int
	Overlap  int
}

func (o Options) normalized() Options {
	if o.MaxWords <= 0 {
		o.MaxWords = DefaultMaxWords
	}
	if o.Overlap < 0 || o.Overlap >= o.MaxWords {
		o.Overlap = 0
	}
	return o
}

// Chunk is one window of the document. Words is its length in words.
type Chunk struct {
	Index int
	Text  string
	Words int
}

// Words are approximated by whitespace-delimited fields, which also holds for
// Telugu and Devanagari text.
func Split(text string, opts Options) []Chunk {
	opts = opts.normalized()
	words := strings.Fields(Normalize(text))
	if len(words) == 0 {
		return nil
	}

	step := opts.MaxWords - opts.Overlap
	chunks := make([]Chunk, 0, len(words)/step+1)
	for start := 0; ; start += step {
		end := min(start+opts.MaxWords, len(words))
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(words[start:end], " "),
			Words: end - start,
		})
		if end == len(words) {
			return chunks
		}
	}
}

// Words split across lines by PDF extraction, as in "certi-\nficate".
var hyphenBreakRe = regexp.MustCompile(`(\p{L})-\s*\n\s*(\p{L})`)

// Normalize rejoins hyphenated line breaks and replaces control characters
// left by text extraction with spaces.
func Normalize(text string) string {
	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, text)
}
