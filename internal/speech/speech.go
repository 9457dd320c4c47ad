// Package speech turns reply text into audio files.
//
// Waveform generation is delegated to a Synthesizer backend (a Piper server
// speaking the Wyoming protocol, or an HTTP inference endpoint). Speaker adds
// the guard rails callers rely on: a minimum-length text guard, the audio
// file extension and the write to disk.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Options selects the voice for one synthesis call.
type Options struct {
	// Language is an ISO-639-1 code such as "te" or "en".
	Language string
	Voice    string
}

// Result holds encoded audio ready to be written to a file.
type Result struct {
	Audio       []byte
	ContentType string
}

// Synthesizer converts text to encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts Options) (Result, error)
	// Extension is the file extension of the produced audio, without the dot.
	Extension() string
}

// MinTextLen is the shortest text sent to a backend; shorter input is
// replaced by the speaker's fallback prompt.
const MinTextLen = 2

var ErrEmptyAudio = errors.New("synthesizer returned no audio")

// Speaker writes synthesized replies to disk.
type Speaker struct {
	synth    Synthesizer
	fallback string
	language string
	log      *slog.Logger
}

// NewSpeaker wraps synth. fallback is spoken instead of near-empty text and
// language picks the default voice.
func NewSpeaker(synth Synthesizer, fallback, language string, log *slog.Logger) *Speaker {
	if log == nil {
		log = slog.Default()
	}
	return &Speaker{synth: synth, fallback: fallback, language: language, log: log.With("component", "speech")}
}

// Speak synthesizes text into destination and returns the final path, which
// always carries the backend's extension. Backend failures are returned as
// ("", err).
func (s *Speaker) Speak(ctx context.Context, text, destination string) (string, error) {
	return s.SpeakLanguage(ctx, text, s.language, destination)
}

// SpeakLanguage is Speak with an explicit voice language.
func (s *Speaker) SpeakLanguage(ctx context.Context, text, language, destination string) (string, error) {
	if s == nil || s.synth == nil {
		return "", fmt.Errorf("no speech backend configured")
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinTextLen {
		text = s.fallback
	}
	path := WithExtension(destination, s.synth.Extension())

	res, err := s.synth.Synthesize(ctx, text, Options{Language: language})
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	if len(res.Audio) == 0 {
		return "", ErrEmptyAudio
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create audio directory: %w", err)
		}
	}
	if err := os.WriteFile(path, res.Audio, 0o644); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	s.log.Debug("speech written", "path", path, "bytes", len(res.Audio), "language", language)
	return path, nil
}

// Extension reports the extension of files written by this speaker.
func (s *Speaker) Extension() string { return s.synth.Extension() }

// WithExtension appends "."+ext to path unless it already ends with it
// (case-insensitive).
func WithExtension(path, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return path
	}
	if strings.HasSuffix(strings.ToLower(path), "."+strings.ToLower(ext)) {
		return path
	}
	return path + "." + ext
}
