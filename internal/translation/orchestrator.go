package translation

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eum-collab/translation-backend/internal/audio"
	"github.com/eum-collab/translation-backend/internal/playback"
	"github.com/eum-collab/translation-backend/internal/room"
	"github.com/eum-collab/translation-backend/internal/segmenter"
	"github.com/eum-collab/translation-backend/internal/shared"
	"github.com/eum-collab/translation-backend/internal/transcript"
	"github.com/eum-collab/translation-backend/internal/transport"
	"github.com/eum-collab/translation-backend/internal/wire"
)

// Config tunes one orchestrator. Zero values fall back to the capture and
// target rates the speech backend expects.
type Config struct {
	BackendURL   string
	Mode         shared.TranslationMode
	CaptureRate  int
	TargetRate   int
	PlaybackRate int
	TickInterval time.Duration
	Segmenter    segmenter.Config

	// ReconnectDelay and Dial are passed through to transport sessions;
	// Dial is injected by tests.
	ReconnectDelay time.Duration
	Dial           transport.DialFunc

	// OnDuckStart/OnDuckEnd bracket TTS playback for a speaker so the
	// caller can lower that speaker's original audio while the translation
	// plays.
	OnDuckStart func(participantID string)
	OnDuckEnd   func(participantID string)
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = shared.ModeRoom
	}
	if c.CaptureRate == 0 {
		c.CaptureRate = segmenter.DefaultCaptureRate
	}
	if c.TargetRate == 0 {
		c.TargetRate = segmenter.DefaultTargetRate
	}
	if c.PlaybackRate == 0 {
		c.PlaybackRate = 24000
	}
	if c.TickInterval == 0 {
		c.TickInterval = segmenter.TickInterval
	}
	c.Segmenter.CaptureRate = c.CaptureRate
	c.Segmenter.TargetRate = c.TargetRate
	return c
}

// Status is the upward-facing snapshot of an orchestrator.
type Status struct {
	Active           bool                   `json:"active"`
	Mode             shared.TranslationMode `json:"mode"`
	ParticipantCount int                    `json:"participant_count"`
	Transcripts      []transcript.Record    `json:"transcripts"`
	Error            string                 `json:"error,omitempty"`
}

// speakerPipeline is one remote participant's capture side: its segmenter,
// its audio unsubscribe, and in peer mode its own backend session.
type speakerPipeline struct {
	participant room.Participant
	lang        string
	seg         *segmenter.Segmenter
	unsubscribe func()
	session     *transport.Session
}

// Orchestrator runs the translation pipeline for one joined room. Room mode
// funnels every speaker's utterances through a single backend session with
// per-frame speaker headers; peer mode opens a session per speaker and sends
// bare PCM.
type Orchestrator struct {
	cfg    Config
	room   room.Room
	bus    *transcript.Bus
	store  *transcript.Store
	logger *slog.Logger

	log   *transcript.Log
	queue *playback.Queue

	mu          sync.Mutex
	active      bool
	lastErr     error
	speakers    map[string]*speakerPipeline
	roomSession *transport.Session
	ticker      *time.Ticker
	tickDone    chan struct{}
	lastSpeaker string
}

// NewOrchestrator wires a pipeline over an already joined room. The store
// may be nil; finals are then kept only in memory.
func NewOrchestrator(r room.Room, sink playback.Sink, bus *transcript.Bus, store *transcript.Store, cfg Config, logger *slog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		cfg:      cfg,
		room:     r,
		bus:      bus,
		store:    store,
		logger:   logger.With("component", "orchestrator", "room_id", r.ID(), "mode", cfg.Mode),
		log:      transcript.NewLog(),
		speakers: make(map[string]*speakerPipeline),
	}
	o.queue = playback.NewQueue(sink, o.logger)
	o.queue.SetCallbacks(cfg.OnDuckStart, cfg.OnDuckEnd)
	return o
}

// Start brings the pipeline up for every current remote participant that
// declares a source language. Idempotent while already active.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return nil
	}
	o.active = true
	o.lastErr = nil

	if o.cfg.Mode == shared.ModeRoom {
		o.roomSession = o.newSessionLocked(o.roomURL(), "")
		o.roomSession.Connect()
	}
	o.ticker = time.NewTicker(o.cfg.TickInterval)
	o.tickDone = make(chan struct{})
	go o.tickLoop(o.ticker, o.tickDone)
	o.mu.Unlock()

	o.room.SetEvents(room.Events{
		OnJoined: o.onJoined,
		OnLeft:   o.onLeft,
	})

	for _, p := range o.room.Participants() {
		o.addSpeaker(p)
	}

	o.logger.Info("translation started")
	return nil
}

// Stop tears the whole pipeline down: every capture subscription, every
// session, the tick loop, and pending playback. Idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.active = false

	if o.ticker != nil {
		o.ticker.Stop()
		close(o.tickDone)
		o.ticker = nil
		o.tickDone = nil
	}

	speakers := o.speakers
	o.speakers = make(map[string]*speakerPipeline)
	roomSession := o.roomSession
	o.roomSession = nil
	o.mu.Unlock()

	o.room.SetEvents(room.Events{})

	for _, sp := range speakers {
		if sp.unsubscribe != nil {
			sp.unsubscribe()
		}
		if sp.session != nil {
			sp.session.Disconnect()
		}
	}
	if roomSession != nil {
		roomSession.Disconnect()
	}
	o.queue.Stop()

	o.logger.Info("translation stopped")
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Active:           o.active,
		Mode:             o.cfg.Mode,
		ParticipantCount: len(o.speakers),
		Transcripts:      o.log.Records(),
	}
	if o.lastErr != nil {
		st.Error = o.lastErr.Error()
	}
	return st
}

func (o *Orchestrator) Transcripts() []transcript.Record {
	return o.log.Records()
}

func (o *Orchestrator) onJoined(p room.Participant) {
	o.addSpeaker(p)
}

func (o *Orchestrator) onLeft(participantID string) {
	o.mu.Lock()
	sp, ok := o.speakers[participantID]
	if ok {
		delete(o.speakers, participantID)
	}
	o.mu.Unlock()

	if !ok {
		return
	}
	if sp.unsubscribe != nil {
		sp.unsubscribe()
	}
	if sp.session != nil {
		sp.session.Disconnect()
	}
	o.logger.Info("speaker removed", "participant_id", participantID)
}

// addSpeaker builds the capture side for one participant. Speakers without
// a declared language are skipped; a capture failure skips that speaker and
// leaves the rest of the pipeline running.
func (o *Orchestrator) addSpeaker(p room.Participant) {
	lang := p.Language()
	if lang == "" {
		o.logger.Debug("participant has no source language, skipping", "participant_id", p.ID)
		return
	}

	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	if _, exists := o.speakers[p.ID]; exists {
		o.mu.Unlock()
		return
	}

	sp := &speakerPipeline{
		participant: p,
		lang:        lang,
		seg:         segmenter.New(o.cfg.Segmenter),
	}
	if o.cfg.Mode == shared.ModePeer {
		sp.session = o.newSessionLocked(o.peerURL(p.ID, lang), p.ID)
	}
	o.speakers[p.ID] = sp
	o.mu.Unlock()

	unsubscribe, err := o.room.SubscribeAudio(p.ID, func(samples []float32, sampleRate int) {
		if sampleRate != o.cfg.CaptureRate {
			samples = audio.Resample(samples, sampleRate, o.cfg.CaptureRate)
		}
		sp.seg.AddFrame(samples)
	})
	if err != nil {
		o.mu.Lock()
		delete(o.speakers, p.ID)
		o.lastErr = err
		o.mu.Unlock()
		if sp.session != nil {
			sp.session.Disconnect()
		}
		o.logger.Warn("audio subscribe failed, speaker skipped",
			"participant_id", p.ID, "error", err)
		return
	}

	o.mu.Lock()
	if current, ok := o.speakers[p.ID]; !ok || current != sp {
		// Torn down while we were subscribing.
		o.mu.Unlock()
		unsubscribe()
		return
	}
	sp.unsubscribe = unsubscribe
	o.mu.Unlock()

	if sp.session != nil {
		sp.session.Connect()
	}
	o.logger.Info("speaker added", "participant_id", p.ID, "lang", lang)
}

func (o *Orchestrator) tickLoop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			o.tick(now)
		}
	}
}

func (o *Orchestrator) tick(now time.Time) {
	o.mu.Lock()
	type pending struct {
		sp    *speakerPipeline
		flush *segmenter.Flush
	}
	var flushes []pending
	for _, sp := range o.speakers {
		if f := sp.seg.Tick(now); f != nil {
			flushes = append(flushes, pending{sp, f})
		}
	}
	roomSession := o.roomSession
	mode := o.cfg.Mode
	o.mu.Unlock()

	for _, p := range flushes {
		var sent bool
		switch mode {
		case shared.ModeRoom:
			if roomSession == nil {
				continue
			}
			frame := wire.EncodeSpeakerFrame(p.sp.participant.ID, p.sp.lang, p.flush.PCM)
			sent = roomSession.SendAudio(frame)
		case shared.ModePeer:
			if p.sp.session == nil {
				continue
			}
			sent = p.sp.session.SendAudio(p.flush.PCM)
		}
		if !sent {
			// Reconnect window; the utterance is dropped, not buffered.
			o.logger.Debug("utterance dropped, session not ready",
				"participant_id", p.sp.participant.ID,
				"reason", p.flush.Reason,
				"samples", p.flush.Samples)
		}
	}
}

func (o *Orchestrator) newSessionLocked(wsURL, participantID string) *transport.Session {
	cb := transport.Callbacks{
		OnTranscript: func(t wire.Transcript) {
			o.handleTranscript(t, participantID)
		},
		OnAudio: func(data []byte) {
			o.handleTTS(data, participantID)
		},
		OnError: func(err error) {
			o.mu.Lock()
			o.lastErr = err
			o.mu.Unlock()
		},
		OnStateChange: func(state shared.ConnectionState) {
			o.logger.Debug("session state", "participant_id", participantID, "state", state)
		},
	}
	return transport.NewSession(transport.Config{
		URL: wsURL,
		Handshake: wire.Handshake{
			SampleRate:    uint32(o.cfg.TargetRate),
			Channels:      1,
			BitsPerSample: 16,
		},
		ReconnectDelay: o.cfg.ReconnectDelay,
		Dial:           o.cfg.Dial,
		Log:            o.logger,
	}, cb)
}

func (o *Orchestrator) handleTranscript(t wire.Transcript, fallbackSpeaker string) {
	speakerID := t.SpeakerID
	if speakerID == "" {
		speakerID = fallbackSpeaker
	}

	o.mu.Lock()
	name := speakerID
	if sp, ok := o.speakers[speakerID]; ok {
		name = sp.participant.Name
	}
	o.lastSpeaker = speakerID
	o.mu.Unlock()

	rec := transcript.Record{
		ID:              shared.NewID("tr"),
		RoomID:          o.room.ID(),
		ParticipantID:   speakerID,
		ParticipantName: name,
		Original:        t.Original,
		Translated:      t.Translated,
		IsFinal:         t.IsFinal,
		Language:        t.Language,
		Timestamp:       time.Now(),
	}

	rec = o.log.Append(rec)
	if o.bus != nil {
		if err := o.bus.Publish(context.Background(), rec); err != nil {
			o.logger.Warn("subtitle publish failed", "error", err)
		}
	}
	if rec.IsFinal && o.store != nil {
		if err := o.store.Save(context.Background(), &rec); err != nil {
			o.logger.Warn("transcript save failed", "error", err)
		}
	}
}

// handleTTS queues translated speech for playback. Room mode carries no
// speaker on the binary frame, so attribution falls back to the most recent
// transcript's speaker; that is who gets ducked.
func (o *Orchestrator) handleTTS(data []byte, participantID string) {
	if participantID == "" {
		o.mu.Lock()
		participantID = o.lastSpeaker
		o.mu.Unlock()
	}
	o.queue.Enqueue(context.Background(), playback.Item{
		Data:          data,
		SampleRate:    o.cfg.PlaybackRate,
		Encoded:       o.cfg.Mode == shared.ModePeer,
		ParticipantID: participantID,
	})
}

func (o *Orchestrator) roomURL() string {
	q := url.Values{}
	q.Set("mode", string(shared.ModeRoom))
	q.Set("room", o.room.ID())
	return o.cfg.BackendURL + "?" + q.Encode()
}

func (o *Orchestrator) peerURL(participantID, lang string) string {
	q := url.Values{}
	q.Set("mode", string(shared.ModePeer))
	q.Set("room", o.room.ID())
	q.Set("speaker", participantID)
	q.Set("lang", lang)
	return o.cfg.BackendURL + "?" + q.Encode()
}
