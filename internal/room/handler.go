package room

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/eum-collab/translation-backend/internal/audio"
	"github.com/eum-collab/translation-backend/internal/shared"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves room access tokens and the capture ingest socket that
// feeds in-process rooms.
type Handler struct {
	registry *Registry
	tokens   *TokenService
	logger   *slog.Logger
}

func NewHandler(registry *Registry, tokens *TokenService, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		tokens:   tokens,
		logger:   logger.With("handler", "room"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/token", h.createToken)
	g.GET("/:room/participants", h.listParticipants)
	g.GET("/:room/ingest", h.ingest)
}

type tokenRequest struct {
	Identity string `json:"identity"`
	Room     string `json:"room"`
	Metadata string `json:"metadata"`
}

type tokenResponse struct {
	Token string `json:"token"`
	Room  string `json:"room"`
	URL   string `json:"url"`
}

func (h *Handler) createToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}
	if req.Identity == "" {
		return shared.BadRequest("missing_identity", "identity is required")
	}
	if req.Room == "" {
		req.Room = h.tokens.GenerateRoomName()
	}

	token, err := h.tokens.GenerateToken(req.Identity, req.Room, req.Metadata)
	if err != nil {
		h.logger.Error("token generation failed", "error", err)
		return shared.InternalError("token_failed", "could not generate token")
	}

	return c.JSON(http.StatusOK, tokenResponse{
		Token: token,
		Room:  req.Room,
		URL:   h.tokens.URL(),
	})
}

type participantView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Language     string `json:"language,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
}

func (h *Handler) listParticipants(c echo.Context) error {
	r, ok := h.registry.Get(c.Param("room"))
	if !ok {
		return shared.NotFound("room_not_found", "room is not active")
	}

	participants := r.Participants()
	views := make([]participantView, 0, len(participants))
	for _, p := range participants {
		md := ParseMetadata(p.Metadata)
		views = append(views, participantView{
			ID:           p.ID,
			Name:         p.Name,
			Language:     md.SourceLanguage,
			ProfileImage: md.ProfileImage,
		})
	}
	return c.JSON(http.StatusOK, views)
}

// ingest upgrades to a websocket and streams one participant's microphone
// into the room: binary frames are little-endian int16 PCM at the declared
// sample rate, text frames replace the participant's metadata.
func (h *Handler) ingest(c echo.Context) error {
	roomName := c.Param("room")
	participantID := c.QueryParam("participant")
	if participantID == "" {
		return shared.BadRequest("missing_participant", "participant query param is required")
	}
	name := c.QueryParam("name")
	if name == "" {
		name = participantID
	}
	sampleRate, err := strconv.Atoi(c.QueryParam("sample_rate"))
	if err != nil || sampleRate <= 0 {
		sampleRate = 48000
	}

	metadata := c.QueryParam("metadata")
	if metadata == "" {
		if lang := c.QueryParam("lang"); lang != "" {
			raw, _ := json.Marshal(map[string]string{"sourceLanguage": lang})
			metadata = string(raw)
		}
	}

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	r := h.registry.GetOrCreate(roomName)
	r.AddParticipant(Participant{ID: participantID, Name: name, Metadata: metadata})
	log := h.logger.With("room", roomName, "participant_id", participantID)
	log.Info("ingest connected", "sample_rate", sampleRate)

	defer func() {
		r.RemoveParticipant(participantID)
		ws.Close()
		log.Info("ingest disconnected")
	}()

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return nil
		}
		switch msgType {
		case websocket.BinaryMessage:
			if len(data) < 2 {
				continue
			}
			samples := audio.Int16ToFloat(audio.PCMBytesToInt16(data))
			r.PushAudio(participantID, samples, sampleRate)
		case websocket.TextMessage:
			r.AddParticipant(Participant{ID: participantID, Name: name, Metadata: string(data)})
		}
	}
}
