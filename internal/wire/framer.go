package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// Binary layout shared with the speech backend.
const (
	// Handshake header: [SampleRate:4][Channels:2][BitsPerSample:2][Reserved:4]
	// little-endian, sent exactly once right after the socket opens.
	HandshakeSize = 12

	// Room-mode frame header: [SpeakerID:36][SourceLang:2][PCM:N].
	// Peer mode sends bare PCM with no per-frame header.
	SpeakerIDSize    = 36
	SourceLangSize   = 2
	SpeakerFrameSize = SpeakerIDSize + SourceLangSize

	StatusReady = "ready"
	StatusError = "error"
)

type Handshake struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
}

func EncodeHandshake(h Handshake) []byte {
	buf := make([]byte, HandshakeSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.SampleRate)
	binary.LittleEndian.PutUint16(buf[4:6], h.Channels)
	binary.LittleEndian.PutUint16(buf[6:8], h.BitsPerSample)
	binary.LittleEndian.PutUint32(buf[8:12], 0)
	return buf
}

func DecodeHandshake(data []byte) (Handshake, error) {
	if len(data) < HandshakeSize {
		return Handshake{}, fmt.Errorf("handshake too short: expected %d bytes, got %d", HandshakeSize, len(data))
	}
	return Handshake{
		SampleRate:    binary.LittleEndian.Uint32(data[0:4]),
		Channels:      binary.LittleEndian.Uint16(data[4:6]),
		BitsPerSample: binary.LittleEndian.Uint16(data[6:8]),
	}, nil
}

// EncodeSpeakerFrame prefixes PCM with the room-mode routing header. The
// speaker ID is truncated or space-padded to exactly 36 bytes, the language
// to exactly 2, so the backend can slice at fixed offsets.
func EncodeSpeakerFrame(speakerID, sourceLang string, pcm []byte) []byte {
	buf := make([]byte, SpeakerFrameSize+len(pcm))
	copy(buf[0:SpeakerIDSize], padField(speakerID, SpeakerIDSize))
	copy(buf[SpeakerIDSize:SpeakerFrameSize], padField(sourceLang, SourceLangSize))
	copy(buf[SpeakerFrameSize:], pcm)
	return buf
}

type SpeakerFrame struct {
	SpeakerID  string
	SourceLang string
	PCM        []byte
}

func DecodeSpeakerFrame(data []byte) (SpeakerFrame, error) {
	if len(data) < SpeakerFrameSize {
		return SpeakerFrame{}, fmt.Errorf("speaker frame too short: expected at least %d bytes, got %d", SpeakerFrameSize, len(data))
	}
	return SpeakerFrame{
		SpeakerID:  strings.TrimRight(string(data[0:SpeakerIDSize]), " "),
		SourceLang: strings.TrimRight(string(data[SpeakerIDSize:SpeakerFrameSize]), " "),
		PCM:        data[SpeakerFrameSize:],
	}, nil
}

func padField(s string, size int) []byte {
	field := make([]byte, size)
	for i := range field {
		field[i] = ' '
	}
	b := []byte(s)
	if len(b) > size {
		b = b[:size]
	}
	copy(field, b)
	return field
}

// HandshakeAck is the first text message on the socket, always interpreted
// as the handshake response regardless of content.
type HandshakeAck struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	Message   string `json:"message,omitempty"`
}

func ParseHandshakeAck(data []byte) (HandshakeAck, error) {
	var ack HandshakeAck
	if err := json.Unmarshal(data, &ack); err != nil {
		return HandshakeAck{}, fmt.Errorf("parse handshake ack: %w", err)
	}
	if ack.Status != StatusReady && ack.Status != StatusError {
		return HandshakeAck{}, fmt.Errorf("unexpected handshake status %q", ack.Status)
	}
	return ack, nil
}
