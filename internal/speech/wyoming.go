package speech

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wyoming frames each event as
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>
type wyomingEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func writeEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(body), len(payload))
	buf.Write(body)
	buf.WriteByte('\n')
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

func readEvent(r *bufio.Reader) (wyomingEvent, []byte, error) {
	var evt wyomingEvent
	header, err := r.ReadString('\n')
	if err != nil {
		return evt, nil, fmt.Errorf("read header: %w", err)
	}
	fields := strings.Fields(header)
	if len(fields) != 2 {
		return evt, nil, fmt.Errorf("invalid wyoming header %q", strings.TrimSpace(header))
	}
	jsonLen, err := strconv.Atoi(fields[0])
	if err != nil {
		return evt, nil, fmt.Errorf("parse json length: %w", err)
	}
	payloadLen, err := strconv.Atoi(fields[1])
	if err != nil {
		return evt, nil, fmt.Errorf("parse payload length: %w", err)
	}

	body := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r, body); err != nil {
		return evt, nil, fmt.Errorf("read event body: %w", err)
	}
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return evt, nil, fmt.Errorf("decode event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return evt, nil, fmt.Errorf("read payload: %w", err)
		}
	}
	return evt, payload, nil
}

// pcmToWAV wraps little-endian PCM samples in a 44-byte RIFF header.
func pcmToWAV(pcm []byte, sampleRate, channels, sampleWidth int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	le := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	le(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	le(uint32(16))
	le(uint16(1)) // PCM
	le(uint16(channels))
	le(uint32(sampleRate))
	le(uint32(sampleRate * channels * sampleWidth))
	le(uint16(channels * sampleWidth))
	le(uint16(sampleWidth * 8))

	buf.WriteString("data")
	le(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
