package room

import (
	"context"
	"errors"
)

var (
	ErrRoomClosed        = errors.New("room closed")
	ErrNoSuchParticipant = errors.New("no such participant")
)

// Participant is one remote or local member of a call.
type Participant struct {
	ID       string
	Name     string
	Metadata string
}

// Language returns the participant's declared source language, or empty
// when the metadata does not carry one.
func (p Participant) Language() string {
	return ParseMetadata(p.Metadata).SourceLanguage
}

// Events are fired by a Room as membership changes. Handlers run on the
// room's delivery goroutine and must not block.
type Events struct {
	OnJoined func(Participant)
	OnLeft   func(participantID string)
}

// Room is the capability surface the translation pipeline needs from the
// SFU connection. The media client owns the actual tracks; this interface
// only exposes membership, microphone PCM, and metadata.
type Room interface {
	// ID is the SFU room name.
	ID() string

	// LocalIdentity is the identity the local participant joined with.
	LocalIdentity() string

	// Participants lists current remote participants.
	Participants() []Participant

	// SubscribeAudio delivers decoded microphone PCM for one participant
	// until the returned unsubscribe func is called. Frames are mono
	// float32 at the given sample rate.
	SubscribeAudio(participantID string, fn func(samples []float32, sampleRate int)) (func(), error)

	// SetEvents installs membership handlers, replacing any previous set.
	SetEvents(Events)

	// UpdateLocalMetadata publishes the local participant's metadata.
	UpdateLocalMetadata(ctx context.Context, metadata string) error

	// Close leaves the room and releases all subscriptions.
	Close() error
}
