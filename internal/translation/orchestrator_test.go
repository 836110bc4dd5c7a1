package translation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eum-collab/translation-backend/internal/room"
	"github.com/eum-collab/translation-backend/internal/segmenter"
	"github.com/eum-collab/translation-backend/internal/shared"
	"github.com/eum-collab/translation-backend/internal/transcript"
	"github.com/eum-collab/translation-backend/internal/transport"
)

type fakeMsg struct {
	msgType int
	data    []byte
}

type fakeConn struct {
	url      string
	incoming chan fakeMsg
	closed   chan struct{}
	once     sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn(url string) *fakeConn {
	return &fakeConn{
		url:      url,
		incoming: make(chan fakeMsg, 32),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.incoming:
		return msg.msgType, msg.data, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteMessage(msgType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.writes = append(c.writes, buf)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) serverSend(msgType int, data []byte) {
	c.incoming <- fakeMsg{msgType: msgType, data: data}
}

func (c *fakeConn) ackReady(sessionID, mode string) {
	c.serverSend(websocket.TextMessage,
		[]byte(`{"status":"ready","session_id":"`+sessionID+`","mode":"`+mode+`"}`))
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) write(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[i]
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) dial(url string) (transport.Conn, error) {
	c := newFakeConn(url)
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

type fakeRoom struct {
	mu           sync.Mutex
	id           string
	participants []room.Participant
	events       room.Events
	captures     map[string]func([]float32, int)
	unsubscribed map[string]bool
	subscribeErr error
	closed       bool
}

func newFakeRoom(id string, participants ...room.Participant) *fakeRoom {
	return &fakeRoom{
		id:           id,
		participants: participants,
		captures:     make(map[string]func([]float32, int)),
		unsubscribed: make(map[string]bool),
	}
}

func (r *fakeRoom) ID() string            { return r.id }
func (r *fakeRoom) LocalIdentity() string { return "local" }

func (r *fakeRoom) Participants() []room.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]room.Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

func (r *fakeRoom) SubscribeAudio(participantID string, fn func([]float32, int)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribeErr != nil {
		return nil, r.subscribeErr
	}
	r.captures[participantID] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.captures, participantID)
		r.unsubscribed[participantID] = true
	}, nil
}

func (r *fakeRoom) SetEvents(ev room.Events) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = ev
}

func (r *fakeRoom) UpdateLocalMetadata(context.Context, string) error { return nil }

func (r *fakeRoom) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRoom) feed(participantID string, samples []float32, rate int) {
	r.mu.Lock()
	fn := r.captures[participantID]
	r.mu.Unlock()
	if fn != nil {
		fn(samples, rate)
	}
}

func (r *fakeRoom) join(p room.Participant) {
	r.mu.Lock()
	r.participants = append(r.participants, p)
	onJoined := r.events.OnJoined
	r.mu.Unlock()
	if onJoined != nil {
		onJoined(p)
	}
}

func (r *fakeRoom) leave(participantID string) {
	r.mu.Lock()
	kept := r.participants[:0]
	for _, p := range r.participants {
		if p.ID != participantID {
			kept = append(kept, p)
		}
	}
	r.participants = kept
	onLeft := r.events.OnLeft
	r.mu.Unlock()
	if onLeft != nil {
		onLeft(participantID)
	}
}

type sinkPlay struct {
	pcm  []int16
	rate int
}

type recordSink struct {
	mu    sync.Mutex
	plays []sinkPlay
}

func (s *recordSink) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays = append(s.plays, sinkPlay{pcm: pcm, rate: sampleRate})
	return nil
}

func (s *recordSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.plays)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func speechFrame(n int) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 0.5
		} else {
			frame[i] = -0.5
		}
	}
	return frame
}

func testConfig(d *fakeDialer, mode shared.TranslationMode) Config {
	return Config{
		BackendURL:   "ws://backend.example.com/translate",
		Mode:         mode,
		CaptureRate:  16000,
		TargetRate:   16000,
		TickInterval: 5 * time.Millisecond,
		Segmenter: segmenter.Config{
			AnalysisFrames: 1,
			ForcedInterval: 30 * time.Millisecond,
		},
		Dial: d.dial,
	}
}

func participant(id, lang string) room.Participant {
	return room.Participant{ID: id, Name: id, Metadata: `{"sourceLanguage":"` + lang + `"}`}
}

func TestRoomModeSingleSessionSpeakerFramed(t *testing.T) {
	dialer := &fakeDialer{}
	fr := newFakeRoom("room1", participant("alice", "ko"), participant("bob", "en"))
	sink := &recordSink{}
	o := NewOrchestrator(fr, sink, nil, nil, testConfig(dialer, shared.ModeRoom), slog.Default())

	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer o.Stop()

	// Two speakers, one session.
	waitFor(t, time.Second, func() bool { return dialer.count() == 1 })
	conn := dialer.conn(0)
	if !strings.Contains(conn.url, "mode=room") || !strings.Contains(conn.url, "room=room1") {
		t.Errorf("unexpected session url %q", conn.url)
	}
	waitFor(t, time.Second, func() bool { return conn.writeCount() >= 1 })
	if got := len(conn.write(0)); got != 12 {
		t.Fatalf("expected 12-byte handshake first, got %d bytes", got)
	}
	conn.ackReady("s1", "room")

	// Keep feeding speech until the forced interval pushes a frame out.
	waitFor(t, 2*time.Second, func() bool {
		fr.feed("alice", speechFrame(160), 16000)
		return conn.writeCount() >= 2
	})

	frame := conn.write(1)
	if len(frame) <= 38 {
		t.Fatalf("expected speaker-framed payload, got %d bytes", len(frame))
	}
	wantID := []byte("alice" + strings.Repeat(" ", 31))
	if !bytes.Equal(frame[:36], wantID) {
		t.Errorf("unexpected speaker header %q", frame[:36])
	}
	if string(frame[36:38]) != "ko" {
		t.Errorf("expected lang ko, got %q", frame[36:38])
	}
	if (len(frame)-38)%2 != 0 {
		t.Errorf("pcm payload not int16 aligned: %d bytes", len(frame)-38)
	}
}

func TestPeerModeSessionPerSpeaker(t *testing.T) {
	dialer := &fakeDialer{}
	fr := newFakeRoom("room1", participant("alice", "ko"), participant("bob", "en"))
	sink := &recordSink{}
	o := NewOrchestrator(fr, sink, nil, nil, testConfig(dialer, shared.ModePeer), slog.Default())

	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer o.Stop()

	waitFor(t, time.Second, func() bool { return dialer.count() == 2 })

	var aliceConn *fakeConn
	for i := 0; i < dialer.count(); i++ {
		if strings.Contains(dialer.conn(i).url, "speaker=alice") {
			aliceConn = dialer.conn(i)
		}
	}
	if aliceConn == nil {
		t.Fatal("no session dialed for alice")
	}
	waitFor(t, time.Second, func() bool { return aliceConn.writeCount() >= 1 })
	aliceConn.ackReady("s1", "peer")

	waitFor(t, 2*time.Second, func() bool {
		fr.feed("alice", speechFrame(160), 16000)
		return aliceConn.writeCount() >= 2
	})

	// Peer-mode audio is bare PCM, no speaker header.
	frame := aliceConn.write(1)
	if len(frame)%2 != 0 {
		t.Errorf("pcm payload not int16 aligned: %d bytes", len(frame))
	}
	if bytes.HasPrefix(frame, []byte("alice ")) {
		t.Error("peer-mode frame carries a speaker header")
	}
}

func TestSpeakerWithoutLanguageSkipped(t *testing.T) {
	dialer := &fakeDialer{}
	fr := newFakeRoom("room1",
		participant("alice", "ko"),
		room.Participant{ID: "ghost", Name: "ghost", Metadata: "{}"})
	o := NewOrchestrator(fr, &recordSink{}, nil, nil, testConfig(dialer, shared.ModeRoom), slog.Default())

	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer o.Stop()

	waitFor(t, time.Second, func() bool { return o.Status().ParticipantCount == 1 })
	fr.mu.Lock()
	_, ghostCaptured := fr.captures["ghost"]
	fr.mu.Unlock()
	if ghostCaptured {
		t.Error("expected no capture for participant without a language")
	}
}

func TestTranscriptDeliveredToLogAndBus(t *testing.T) {
	dialer := &fakeDialer{}
	fr := newFakeRoom("room1", participant("alice", "ko"))
	bus := transcript.NewBus("room1", nil, slog.Default())
	defer bus.Close()
	sub, cancel := bus.Subscribe()
	defer cancel()

	o := NewOrchestrator(fr, &recordSink{}, bus, nil, testConfig(dialer, shared.ModeRoom), slog.Default())
	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer o.Stop()

	waitFor(t, time.Second, func() bool { return dialer.count() == 1 })
	conn := dialer.conn(0)
	waitFor(t, time.Second, func() bool { return conn.writeCount() >= 1 })
	conn.ackReady("s1", "room")

	conn.serverSend(websocket.TextMessage, []byte(
		`{"type":"transcript","speakerId":"alice","data":{"original":"[FINAL] 안녕하세요","translated":"hello","isFinal":true}}`))

	waitFor(t, time.Second, func() bool { return len(o.Transcripts()) == 1 })
	rec := o.Transcripts()[0]
	if rec.ParticipantID != "alice" {
		t.Errorf("expected alice, got %q", rec.ParticipantID)
	}
	if rec.Original != "안녕하세요" {
		t.Errorf("expected prefix stripped, got %q", rec.Original)
	}
	if rec.Translated != "hello" || !rec.IsFinal {
		t.Errorf("unexpected record %+v", rec)
	}

	select {
	case got := <-sub:
		if got.ParticipantID != "alice" {
			t.Errorf("bus delivered wrong speaker %q", got.ParticipantID)
		}
	case <-time.After(time.Second):
		t.Fatal("bus never delivered the record")
	}
}

func TestSupersedingFinalPublishedWithPartialID(t *testing.T) {
	dialer := &fakeDialer{}
	fr := newFakeRoom("room1", participant("alice", "ko"))
	bus := transcript.NewBus("room1", nil, slog.Default())
	defer bus.Close()
	sub, cancel := bus.Subscribe()
	defer cancel()

	o := NewOrchestrator(fr, &recordSink{}, bus, nil, testConfig(dialer, shared.ModeRoom), slog.Default())
	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer o.Stop()

	waitFor(t, time.Second, func() bool { return dialer.count() == 1 })
	conn := dialer.conn(0)
	waitFor(t, time.Second, func() bool { return conn.writeCount() >= 1 })
	conn.ackReady("s1", "room")

	conn.serverSend(websocket.TextMessage, []byte(
		`{"type":"transcript","speakerId":"alice","data":{"original":"안녕하","translated":"","isFinal":false}}`))
	waitFor(t, time.Second, func() bool { return len(o.Transcripts()) == 1 })
	var partial transcript.Record
	select {
	case partial = <-sub:
	case <-time.After(time.Second):
		t.Fatal("bus never delivered the partial")
	}

	conn.serverSend(websocket.TextMessage, []byte(
		`{"type":"transcript","speakerId":"alice","data":{"original":"[FINAL] 안녕하세요","translated":"hello","isFinal":true}}`))
	waitFor(t, time.Second, func() bool {
		recs := o.Transcripts()
		return len(recs) == 1 && recs[0].IsFinal
	})

	// The final replaced the partial in the log; every consumer must see
	// the same record identity.
	kept := o.Transcripts()[0]
	if kept.ID != partial.ID {
		t.Errorf("log kept ID %q, expected the partial's %q", kept.ID, partial.ID)
	}
	select {
	case final := <-sub:
		if !final.IsFinal {
			t.Fatalf("expected final on bus, got %+v", final)
		}
		if final.ID != partial.ID {
			t.Errorf("bus delivered final with ID %q, expected the partial's %q", final.ID, partial.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("bus never delivered the final")
	}
}

func TestTTSPlaybackWithDucking(t *testing.T) {
	dialer := &fakeDialer{}
	fr := newFakeRoom("room1", participant("alice", "ko"))
	sink := &recordSink{}

	var mu sync.Mutex
	var ducked []string
	cfg := testConfig(dialer, shared.ModeRoom)
	cfg.OnDuckStart = func(id string) {
		mu.Lock()
		ducked = append(ducked, "start:"+id)
		mu.Unlock()
	}
	cfg.OnDuckEnd = func(id string) {
		mu.Lock()
		ducked = append(ducked, "end:"+id)
		mu.Unlock()
	}

	o := NewOrchestrator(fr, sink, nil, nil, cfg, slog.Default())
	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer o.Stop()

	waitFor(t, time.Second, func() bool { return dialer.count() == 1 })
	conn := dialer.conn(0)
	waitFor(t, time.Second, func() bool { return conn.writeCount() >= 1 })
	conn.ackReady("s1", "room")

	// The transcript attributes the TTS that follows it.
	conn.serverSend(websocket.TextMessage, []byte(
		`{"type":"transcript","speakerId":"alice","data":{"original":"hi","translated":"안녕","isFinal":true}}`))
	waitFor(t, time.Second, func() bool { return len(o.Transcripts()) == 1 })

	conn.serverSend(websocket.BinaryMessage, []byte{0x01, 0x00, 0x02, 0x00})

	waitFor(t, time.Second, func() bool { return sink.playCount() == 1 })
	sink.mu.Lock()
	play := sink.plays[0]
	sink.mu.Unlock()
	if play.rate != 24000 {
		t.Errorf("expected default playback rate 24000, got %d", play.rate)
	}
	if len(play.pcm) != 2 || play.pcm[0] != 1 || play.pcm[1] != 2 {
		t.Errorf("unexpected pcm %v", play.pcm)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ducked) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if ducked[0] != "start:alice" || ducked[1] != "end:alice" {
		t.Errorf("unexpected duck sequence %v", ducked)
	}
}

func TestJoinAndLeaveReshapePipeline(t *testing.T) {
	dialer := &fakeDialer{}
	fr := newFakeRoom("room1", participant("alice", "ko"))
	o := NewOrchestrator(fr, &recordSink{}, nil, nil, testConfig(dialer, shared.ModePeer), slog.Default())

	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer o.Stop()

	waitFor(t, time.Second, func() bool { return dialer.count() == 1 })

	fr.join(participant("bob", "en"))
	waitFor(t, time.Second, func() bool { return dialer.count() == 2 })
	if got := o.Status().ParticipantCount; got != 2 {
		t.Errorf("expected 2 participants, got %d", got)
	}

	fr.leave("bob")
	waitFor(t, time.Second, func() bool { return o.Status().ParticipantCount == 1 })
	fr.mu.Lock()
	bobUnsubscribed := fr.unsubscribed["bob"]
	fr.mu.Unlock()
	if !bobUnsubscribed {
		t.Error("expected bob's capture released on leave")
	}
}

func TestCaptureFailureSkipsSpeakerOnly(t *testing.T) {
	dialer := &fakeDialer{}
	fr := newFakeRoom("room1", participant("alice", "ko"))
	fr.subscribeErr = errors.New("no microphone track")
	o := NewOrchestrator(fr, &recordSink{}, nil, nil, testConfig(dialer, shared.ModeRoom), slog.Default())

	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer o.Stop()

	waitFor(t, time.Second, func() bool { return o.Status().Error != "" })
	st := o.Status()
	if !st.Active {
		t.Error("pipeline should stay active after a capture failure")
	}
	if st.ParticipantCount != 0 {
		t.Errorf("expected failed speaker dropped, got %d", st.ParticipantCount)
	}

	// A later speaker with working capture still joins.
	fr.mu.Lock()
	fr.subscribeErr = nil
	fr.mu.Unlock()
	fr.join(participant("bob", "en"))
	waitFor(t, time.Second, func() bool { return o.Status().ParticipantCount == 1 })
}

func TestStopTearsDownEverything(t *testing.T) {
	dialer := &fakeDialer{}
	fr := newFakeRoom("room1", participant("alice", "ko"))
	o := NewOrchestrator(fr, &recordSink{}, nil, nil, testConfig(dialer, shared.ModeRoom), slog.Default())

	if err := o.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return o.Status().ParticipantCount == 1 })

	o.Stop()
	o.Stop()

	fr.mu.Lock()
	aliceUnsubscribed := fr.unsubscribed["alice"]
	fr.mu.Unlock()
	if !aliceUnsubscribed {
		t.Error("expected capture released on stop")
	}
	if o.Status().Active {
		t.Error("expected inactive after stop")
	}
	if o.Status().ParticipantCount != 0 {
		t.Error("expected no speakers after stop")
	}

	// No new sockets after teardown.
	dials := dialer.count()
	fr.join(participant("carol", "ja"))
	time.Sleep(50 * time.Millisecond)
	if dialer.count() != dials {
		t.Error("stopped orchestrator opened a socket")
	}
}
