package bootstrap

import (
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/eum-collab/translation-backend/internal/room"
	"github.com/eum-collab/translation-backend/internal/transcript"
	"github.com/eum-collab/translation-backend/internal/translation"
)

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

func ProvideRoomHandler(registry *room.Registry, tokens *room.TokenService, logger *slog.Logger) *room.Handler {
	return room.NewHandler(registry, tokens, logger)
}

func ProvideTranslationHandler(mgr *translation.Manager, store *transcript.Store, logger *slog.Logger) *translation.Handler {
	return translation.NewHandler(mgr, store, logger)
}

type HandlerParams struct {
	fx.In

	RoomHandler        *room.Handler
	TranslationHandler *translation.Handler
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/v1")

	params.RoomHandler.RegisterRoutes(api.Group("/rooms"))
	params.TranslationHandler.RegisterRoutes(api.Group("/rooms"))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideRoomHandler,
		ProvideTranslationHandler,
	),
	fx.Invoke(RegisterRoutes),
)
