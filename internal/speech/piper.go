package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

var piperVoices = map[string]string{
	"te": "te_IN-maya-medium",
	"hi": "hi_IN-pratham-medium",
	"en": "en_US-lessac-medium",
}

// Piper synthesizes speech on a Piper server over the Wyoming TCP protocol.
// A connection is opened per request.
type Piper struct {
	endpoint string
	voices   map[string]string
	log      *slog.Logger
}

// NewPiper targets the Wyoming server at endpoint (host:port). voice, when
// set, overrides the per-language default for every request.
func NewPiper(endpoint, voice string, log *slog.Logger) *Piper {
	if log == nil {
		log = slog.Default()
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "tcp://"), "http://")
	voices := make(map[string]string, len(piperVoices)+1)
	for k, v := range piperVoices {
		voices[k] = v
	}
	if voice != "" {
		voices["*"] = voice
	}
	return &Piper{endpoint: endpoint, voices: voices, log: log}
}

func (p *Piper) Extension() string { return "wav" }

func (p *Piper) voice(opts Options) string {
	if opts.Voice != "" {
		return opts.Voice
	}
	if v := p.voices["*"]; v != "" {
		return v
	}
	if v := p.voices[opts.Language]; v != "" {
		return v
	}
	return p.voices["en"]
}

func (p *Piper) Synthesize(ctx context.Context, text string, opts Options) (Result, error) {
	if text == "" {
		return Result{}, fmt.Errorf("empty text for synthesis")
	}
	voice := p.voice(opts)

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", p.endpoint)
	if err != nil {
		return Result{}, fmt.Errorf("connect to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	err = writeEvent(conn, wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{"text": text, "voice": map[string]any{"name": voice}},
	}, nil)
	if err != nil {
		return Result{}, fmt.Errorf("send synthesize event: %w", err)
	}

	var (
		pcm        bytes.Buffer
		sampleRate = 22050
		channels   = 1
		width      = 2
		r          = bufio.NewReader(conn)
	)
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return Result{}, fmt.Errorf("read piper event: %w", err)
		}
		switch evt.Type {
		case "audio-start":
			sampleRate = intField(evt.Data, "rate", sampleRate)
			channels = intField(evt.Data, "channels", channels)
			width = intField(evt.Data, "width", width)
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			p.log.Debug("piper synthesized", "voice", voice, "pcm_bytes", pcm.Len(), "rate", sampleRate)
			return Result{Audio: pcmToWAV(pcm.Bytes(), sampleRate, channels, width), ContentType: "audio/wav"}, nil
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return Result{}, fmt.Errorf("piper error: %s", msg)
		}
	}
}

func intField(data map[string]any, key string, def int) int {
	if v, ok := data[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}
