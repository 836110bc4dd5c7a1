package transcript

import (
	"time"
)

// Record is one line of a call's transcript. Partials for a speaker are
// superseded in place by their final; the log never holds both.
type Record struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	RoomID          string    `json:"room_id" gorm:"index"`
	ParticipantID   string    `json:"participant_id" gorm:"index"`
	ParticipantName string    `json:"participant_name"`
	Original        string    `json:"original"`
	Translated      string    `json:"translated,omitempty"`
	IsFinal         bool      `json:"is_final"`
	Language        string    `json:"language,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

func (Record) TableName() string {
	return "transcripts"
}
