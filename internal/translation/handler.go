package translation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/eum-collab/translation-backend/internal/shared"
	"github.com/eum-collab/translation-backend/internal/transcript"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler exposes per-room translation control plus transcript history and
// the live subtitle stream.
type Handler struct {
	mgr    *Manager
	store  *transcript.Store
	logger *slog.Logger
}

func NewHandler(mgr *Manager, store *transcript.Store, logger *slog.Logger) *Handler {
	return &Handler{
		mgr:    mgr,
		store:  store,
		logger: logger.With("handler", "translation"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/:room/translation", h.start)
	g.DELETE("/:room/translation", h.stop)
	g.GET("/:room/translation", h.status)
	g.GET("/:room/transcripts", h.history)
	g.GET("/:room/subtitles", h.subtitles)
}

type startRequest struct {
	Mode shared.TranslationMode `json:"mode"`
}

func (h *Handler) start(c echo.Context) error {
	roomName := c.Param("room")

	var req startRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}
	switch req.Mode {
	case "", shared.ModeRoom, shared.ModePeer:
	default:
		return shared.BadRequest("invalid_mode", "mode must be room or peer")
	}

	if err := h.mgr.Start(c.Request().Context(), roomName, req.Mode); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return shared.Conflict("already_running", "translation is already running for this room")
		}
		h.logger.Error("start failed", "room", roomName, "error", err)
		return shared.InternalError("start_failed", "could not start translation")
	}

	st, err := h.mgr.Status(roomName)
	if err != nil {
		return shared.InternalError("start_failed", "could not start translation")
	}
	return c.JSON(http.StatusCreated, st)
}

func (h *Handler) stop(c echo.Context) error {
	roomName := c.Param("room")
	if err := h.mgr.Stop(roomName); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("not_running", "translation is not running for this room")
		}
		return shared.InternalError("stop_failed", "could not stop translation")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) status(c echo.Context) error {
	st, err := h.mgr.Status(c.Param("room"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("not_running", "translation is not running for this room")
		}
		return shared.InternalError("status_failed", "could not read status")
	}
	return c.JSON(http.StatusOK, st)
}

// history serves the live log while the room is running, else persisted
// finals from the store.
func (h *Handler) history(c echo.Context) error {
	roomName := c.Param("room")

	if st, err := h.mgr.Status(roomName); err == nil {
		return c.JSON(http.StatusOK, st.Transcripts)
	}
	if h.store == nil {
		return shared.NotFound("no_history", "no transcript history for this room")
	}

	recs, err := h.store.ListByRoom(c.Request().Context(), roomName, 0)
	if err != nil {
		h.logger.Error("history lookup failed", "room", roomName, "error", err)
		return shared.InternalError("history_failed", "could not load transcript history")
	}
	return c.JSON(http.StatusOK, recs)
}

// subtitles streams the room's subtitle bus over a websocket until either
// side closes.
func (h *Handler) subtitles(c echo.Context) error {
	bus, err := h.mgr.Bus(c.Param("room"))
	if err != nil {
		return shared.NotFound("not_running", "translation is not running for this room")
	}

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	sub, cancel := bus.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(c.Request().Context())
	defer stop()
	go func() {
		defer stop()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-sub:
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(rec); err != nil {
				return nil
			}
		}
	}
}
