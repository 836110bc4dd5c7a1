package room

import (
	"testing"
)

func TestParseMetadataPrimaryKey(t *testing.T) {
	md := ParseMetadata(`{"sourceLanguage":"ko","profileImg":"https://cdn.example.com/a.png"}`)
	if md.SourceLanguage != "ko" {
		t.Errorf("expected ko, got %q", md.SourceLanguage)
	}
	if md.ProfileImage != "https://cdn.example.com/a.png" {
		t.Errorf("unexpected profile image %q", md.ProfileImage)
	}
}

func TestParseMetadataFallbackKeys(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"snake_case", `{"source_language":"en"}`, "en"},
		{"bare language", `{"language":"ja"}`, "ja"},
		{"primary wins over fallback", `{"sourceLanguage":"ko","language":"en"}`, "ko"},
		{"empty primary falls through", `{"sourceLanguage":"","language":"en"}`, "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseMetadata(tt.raw).SourceLanguage; got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseMetadataMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `"just a string"`, `{"sourceLanguage":42}`} {
		md := ParseMetadata(raw)
		if md.SourceLanguage != "" || md.ProfileImage != "" {
			t.Errorf("expected zero metadata for %q, got %+v", raw, md)
		}
	}
}

func TestParticipantLanguage(t *testing.T) {
	p := Participant{ID: "alice", Metadata: `{"sourceLanguage":"ko"}`}
	if p.Language() != "ko" {
		t.Errorf("expected ko, got %q", p.Language())
	}

	none := Participant{ID: "bob", Metadata: "{}"}
	if none.Language() != "" {
		t.Errorf("expected empty language, got %q", none.Language())
	}
}
