package translation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/eum-collab/translation-backend/internal/playback"
	"github.com/eum-collab/translation-backend/internal/room"
	"github.com/eum-collab/translation-backend/internal/shared"
	"github.com/eum-collab/translation-backend/internal/transcript"
)

// RoomFactory joins a named SFU room and hands back its capability surface.
// Injected so tests can run the whole manager against a fake room.
type RoomFactory func(ctx context.Context, roomName string) (room.Room, error)

type activeRoom struct {
	room room.Room
	bus  *transcript.Bus
	orch *Orchestrator
}

// Manager owns one orchestrator per translated room.
type Manager struct {
	factory RoomFactory
	sink    playback.Sink
	redis   *redis.Client
	store   *transcript.Store
	base    Config
	logger  *slog.Logger

	mu     sync.RWMutex
	rooms  map[string]*activeRoom
	closed bool
}

func NewManager(factory RoomFactory, sink playback.Sink, redisClient *redis.Client, store *transcript.Store, base Config, logger *slog.Logger) *Manager {
	return &Manager{
		factory: factory,
		sink:    sink,
		redis:   redisClient,
		store:   store,
		base:    base,
		logger:  logger.With("component", "translation_manager"),
		rooms:   make(map[string]*activeRoom),
	}
}

// Start joins the room and brings its pipeline up. Starting a room that is
// already running is a conflict; stop it first to change modes.
func (m *Manager) Start(ctx context.Context, roomName string, mode shared.TranslationMode) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("manager closed")
	}
	if _, exists := m.rooms[roomName]; exists {
		m.mu.Unlock()
		return shared.ErrConflict
	}
	// Reserve the slot so concurrent starts for the same room collide here
	// instead of joining twice.
	m.rooms[roomName] = nil
	m.mu.Unlock()

	r, err := m.factory(ctx, roomName)
	if err != nil {
		m.release(roomName)
		return fmt.Errorf("join room: %w", err)
	}

	cfg := m.base
	if mode != "" {
		cfg.Mode = mode
	}
	bus := transcript.NewBus(roomName, m.redis, m.logger)
	orch := NewOrchestrator(r, m.sink, bus, m.store, cfg, m.logger)

	if err := orch.Start(); err != nil {
		bus.Close()
		r.Close()
		m.release(roomName)
		return err
	}

	m.mu.Lock()
	m.rooms[roomName] = &activeRoom{room: r, bus: bus, orch: orch}
	m.mu.Unlock()

	m.logger.Info("room translation started", "room", roomName, "mode", cfg.Mode)
	return nil
}

func (m *Manager) release(roomName string) {
	m.mu.Lock()
	delete(m.rooms, roomName)
	m.mu.Unlock()
}

// Stop tears down the room's pipeline, bus, and SFU membership.
func (m *Manager) Stop(roomName string) error {
	m.mu.Lock()
	ar, ok := m.rooms[roomName]
	if ok {
		delete(m.rooms, roomName)
	}
	m.mu.Unlock()

	if !ok || ar == nil {
		return shared.ErrNotFound
	}

	ar.orch.Stop()
	ar.bus.Close()
	if err := ar.room.Close(); err != nil {
		m.logger.Warn("room close failed", "room", roomName, "error", err)
	}
	m.logger.Info("room translation stopped", "room", roomName)
	return nil
}

func (m *Manager) Status(roomName string) (Status, error) {
	m.mu.RLock()
	ar, ok := m.rooms[roomName]
	m.mu.RUnlock()

	if !ok || ar == nil {
		return Status{}, shared.ErrNotFound
	}
	return ar.orch.Status(), nil
}

// Bus exposes a running room's subtitle bus for live subscribers.
func (m *Manager) Bus(roomName string) (*transcript.Bus, error) {
	m.mu.RLock()
	ar, ok := m.rooms[roomName]
	m.mu.RUnlock()

	if !ok || ar == nil {
		return nil, shared.ErrNotFound
	}
	return ar.bus, nil
}

func (m *Manager) ActiveRooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.rooms))
	for name, ar := range m.rooms {
		if ar != nil {
			names = append(names, name)
		}
	}
	return names
}

// Close stops every room. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	rooms := m.rooms
	m.rooms = make(map[string]*activeRoom)
	m.mu.Unlock()

	for name, ar := range rooms {
		if ar == nil {
			continue
		}
		ar.orch.Stop()
		ar.bus.Close()
		if err := ar.room.Close(); err != nil {
			m.logger.Warn("room close failed", "room", name, "error", err)
		}
	}
}
