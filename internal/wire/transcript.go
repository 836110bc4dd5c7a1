package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Transcript is a decoded transcript message. Room-mode messages arrive as
// an envelope with the speaker ID alongside a nested payload; peer-mode
// messages carry the fields at the top level. Both decode to this.
type Transcript struct {
	SpeakerID  string
	Original   string
	Translated string
	IsFinal    bool
	Language   string
}

type transcriptPayload struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
	IsFinal    bool   `json:"isFinal"`
	Language   string `json:"language,omitempty"`
}

type transcriptMessage struct {
	Type      string             `json:"type"`
	SpeakerID string             `json:"speakerId,omitempty"`
	Data      *transcriptPayload `json:"data,omitempty"`
	transcriptPayload
}

func ParseTranscript(data []byte) (Transcript, error) {
	var msg transcriptMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Transcript{}, fmt.Errorf("parse transcript: %w", err)
	}
	if msg.Type != "transcript" {
		return Transcript{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}

	payload := msg.transcriptPayload
	if msg.Data != nil {
		payload = *msg.Data
	}
	return Transcript{
		SpeakerID:  msg.SpeakerID,
		Original:   StripTag(payload.Original),
		Translated: StripTag(payload.Translated),
		IsFinal:    payload.IsFinal,
		Language:   payload.Language,
	}, nil
}

var textTags = []string{"[FINAL]", "[PARTIAL]", "[LLM]"}

// StripTag removes the backend's textual stage prefixes before display.
func StripTag(text string) string {
	for _, tag := range textTags {
		if strings.HasPrefix(text, tag) {
			return strings.TrimSpace(strings.TrimPrefix(text, tag))
		}
	}
	return text
}
