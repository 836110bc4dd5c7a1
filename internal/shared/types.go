package shared

import (
	"crypto/rand"
	"encoding/hex"
)

func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// TranslationMode selects how a room's audio reaches the speech backend.
type TranslationMode string

const (
	// ModeRoom multiplexes every remote speaker over a single connection,
	// tagging each frame with a speaker header.
	ModeRoom TranslationMode = "room"
	// ModePeer opens one connection per remote speaker. This is the
	// N-squared topology room mode was built to replace; kept for
	// deployments that cannot fan in.
	ModePeer TranslationMode = "peer"
)

func (m TranslationMode) String() string {
	return string(m)
}

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateHandshaking  ConnectionState = "handshaking"
	StateReady        ConnectionState = "ready"
	StateError        ConnectionState = "error"
)

func (s ConnectionState) String() string {
	return string(s)
}
