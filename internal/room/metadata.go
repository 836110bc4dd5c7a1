package room

import (
	"encoding/json"
)

// Metadata is what a participant publishes about itself through the SFU.
// Different client builds used different key names for the language field,
// so parsing falls back across the known spellings.
type Metadata struct {
	SourceLanguage string
	ProfileImage   string
}

// ParseMetadata decodes a participant's raw metadata string. Malformed or
// empty metadata yields zero values; callers treat missing language as
// "do not translate this participant".
func ParseMetadata(raw string) Metadata {
	if raw == "" {
		return Metadata{}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Metadata{}
	}

	return Metadata{
		SourceLanguage: stringField(fields, "sourceLanguage", "source_language", "language"),
		ProfileImage:   stringField(fields, "profileImg", "profile_img"),
	}
}

func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}
