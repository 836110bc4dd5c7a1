package room

import (
	"context"
	"sync"
)

// MemoryRoom is the in-process Room used when clients stream their capture
// to this server directly instead of through an external SFU. The ingest
// side (websocket handler) drives AddParticipant/PushAudio; the translation
// pipeline consumes the Room interface like any other implementation.
type MemoryRoom struct {
	name    string
	onClose func()

	mu           sync.Mutex
	participants map[string]Participant
	subs         map[string]map[int]func([]float32, int)
	nextSub      int
	events       Events
	closed       bool
}

func newMemoryRoom(name string, onClose func()) *MemoryRoom {
	return &MemoryRoom{
		name:         name,
		onClose:      onClose,
		participants: make(map[string]Participant),
		subs:         make(map[string]map[int]func([]float32, int)),
	}
}

func (r *MemoryRoom) ID() string            { return r.name }
func (r *MemoryRoom) LocalIdentity() string { return "server" }

func (r *MemoryRoom) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

func (r *MemoryRoom) SubscribeAudio(participantID string, fn func(samples []float32, sampleRate int)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRoomClosed
	}
	if _, ok := r.participants[participantID]; !ok {
		return nil, ErrNoSuchParticipant
	}

	id := r.nextSub
	r.nextSub++
	if r.subs[participantID] == nil {
		r.subs[participantID] = make(map[int]func([]float32, int))
	}
	r.subs[participantID][id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if subs, ok := r.subs[participantID]; ok {
			delete(subs, id)
		}
	}, nil
}

func (r *MemoryRoom) SetEvents(ev Events) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = ev
}

func (r *MemoryRoom) UpdateLocalMetadata(_ context.Context, _ string) error { return nil }

func (r *MemoryRoom) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.subs = make(map[string]map[int]func([]float32, int))
	r.events = Events{}
	onClose := r.onClose
	r.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

// AddParticipant registers an ingesting client. Re-adding an identity
// replaces its metadata without firing a join event.
func (r *MemoryRoom) AddParticipant(p Participant) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	_, existed := r.participants[p.ID]
	r.participants[p.ID] = p
	onJoined := r.events.OnJoined
	r.mu.Unlock()

	if !existed && onJoined != nil {
		onJoined(p)
	}
}

func (r *MemoryRoom) RemoveParticipant(participantID string) {
	r.mu.Lock()
	if _, ok := r.participants[participantID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.participants, participantID)
	delete(r.subs, participantID)
	onLeft := r.events.OnLeft
	r.mu.Unlock()

	if onLeft != nil {
		onLeft(participantID)
	}
}

// PushAudio fans one capture frame out to the participant's subscribers.
func (r *MemoryRoom) PushAudio(participantID string, samples []float32, sampleRate int) {
	r.mu.Lock()
	fns := make([]func([]float32, int), 0, len(r.subs[participantID]))
	for _, fn := range r.subs[participantID] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(samples, sampleRate)
	}
}

// Registry tracks the live in-process rooms by name.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*MemoryRoom
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*MemoryRoom)}
}

func (reg *Registry) GetOrCreate(name string) *MemoryRoom {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[name]; ok {
		return r
	}
	r := newMemoryRoom(name, func() { reg.remove(name) })
	reg.rooms[name] = r
	return r
}

func (reg *Registry) Get(name string) (*MemoryRoom, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[name]
	return r, ok
}

func (reg *Registry) remove(name string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, name)
}
