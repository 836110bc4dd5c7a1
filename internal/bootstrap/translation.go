package bootstrap

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/eum-collab/translation-backend/internal/playback"
	"github.com/eum-collab/translation-backend/internal/room"
	"github.com/eum-collab/translation-backend/internal/transcript"
	"github.com/eum-collab/translation-backend/internal/translation"
)

func ProvideRegistry() *room.Registry {
	return room.NewRegistry()
}

// ProvideRoomFactory serves the in-process rooms fed by the ingest socket.
func ProvideRoomFactory(registry *room.Registry) translation.RoomFactory {
	return func(ctx context.Context, roomName string) (room.Room, error) {
		return registry.GetOrCreate(roomName), nil
	}
}

// ProvideSink paces playback in real time; TTS delivery back to listeners
// rides the subtitle channel, so the sink only needs to keep queue timing
// honest.
func ProvideSink(logger *slog.Logger) playback.Sink {
	log := logger.With("component", "playback_sink")
	return playback.NewPacedSink(func(pcm []int16, sampleRate int) {
		log.Debug("playing translated audio", "samples", len(pcm), "sample_rate", sampleRate)
	})
}

func ProvideTokenService(cfg *Config) *room.TokenService {
	return room.NewTokenService(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL)
}

func ProvideManager(
	lc fx.Lifecycle,
	factory translation.RoomFactory,
	sink playback.Sink,
	redisClient *redis.Client,
	store *transcript.Store,
	cfg *Config,
	logger *slog.Logger,
) *translation.Manager {
	base := translation.Config{
		BackendURL:     cfg.BackendWSURL,
		Mode:           cfg.DefaultMode,
		CaptureRate:    cfg.CaptureRate,
		TargetRate:     cfg.TargetRate,
		PlaybackRate:   cfg.PlaybackRate,
		ReconnectDelay: cfg.ReconnectDelay,
	}
	mgr := translation.NewManager(factory, sink, redisClient, store, base, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			mgr.Close()
			return nil
		},
	})
	return mgr
}

var TranslationModule = fx.Options(
	fx.Provide(
		ProvideRegistry,
		ProvideRoomFactory,
		ProvideSink,
		ProvideTokenService,
		ProvideManager,
	),
)
