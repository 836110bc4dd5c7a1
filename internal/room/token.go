package room

import (
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/eum-collab/translation-backend/internal/shared"
)

type TokenService struct {
	apiKey    string
	apiSecret string
	url       string
}

func NewTokenService(apiKey, apiSecret, url string) *TokenService {
	return &TokenService{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		url:       url,
	}
}

func (s *TokenService) URL() string {
	return s.url
}

// GenerateToken mints a join token for the given identity. The metadata
// string travels with the participant so peers can read its language and
// profile fields.
func (s *TokenService) GenerateToken(identity, roomName, metadata string) (string, error) {
	at := auth.NewAccessToken(s.apiKey, s.apiSecret)

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomName,
	}

	at.SetIdentity(identity).
		SetValidFor(24 * time.Hour).
		SetMetadata(metadata).
		SetVideoGrant(grant)

	return at.ToJWT()
}

func (s *TokenService) GenerateRoomName() string {
	return "room_" + shared.NewID("")
}
