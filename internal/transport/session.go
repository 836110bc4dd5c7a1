package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eum-collab/translation-backend/internal/shared"
	"github.com/eum-collab/translation-backend/internal/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultReconnectDelay is how long to wait before redialing after an
	// unexpected close. Audio captured during the gap is dropped, not
	// buffered; the segmenter keeps producing but SendAudio refuses it.
	DefaultReconnectDelay = 3 * time.Second

	writeWait = 10 * time.Second
)

// Conn is the slice of a websocket connection the session needs. Satisfied
// by *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type DialFunc func(url string) (Conn, error)

// gorillaConn bounds every write so a stalled backend cannot wedge the
// send path behind the session lock.
type gorillaConn struct {
	*websocket.Conn
}

func (c gorillaConn) WriteMessage(messageType int, data []byte) error {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

func gorillaDial(url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return gorillaConn{c}, nil
}

type Callbacks struct {
	OnReady       func(sessionID, mode string)
	OnTranscript  func(t wire.Transcript)
	OnAudio       func(data []byte)
	OnStateChange func(state shared.ConnectionState)
	OnError       func(err error)
}

type Config struct {
	URL            string
	Handshake      wire.Handshake
	ReconnectDelay time.Duration
	Dial           DialFunc
	Log            *slog.Logger
}

// Session owns one connection to the speech backend and walks it through
// disconnected -> connecting -> handshaking -> ready. The same machine
// serves both topologies; peer mode carries the speaker in the URL query,
// room mode in the per-frame header.
type Session struct {
	cfg Config
	cb  Callbacks
	log *slog.Logger

	mu             sync.Mutex
	state          shared.ConnectionState
	conn           Conn
	connEpoch      uint64
	sessionID      string
	mode           string
	wanted         bool
	reconnectTimer *time.Timer
	wg             sync.WaitGroup
}

func NewSession(cfg Config, cb Callbacks) *Session {
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dial == nil {
		cfg.Dial = gorillaDial
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Session{
		cfg:   cfg,
		cb:    cb,
		log:   cfg.Log.With("component", "transport", "session", uuid.New().String()),
		state: shared.StateDisconnected,
	}
}

// Connect starts dialing unless a connection attempt is already underway.
// Safe to call repeatedly; only the first call per disconnect opens a
// socket.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.wanted && s.state != shared.StateDisconnected && s.state != shared.StateError {
		s.mu.Unlock()
		return
	}
	s.wanted = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.connEpoch++
	s.setStateLocked(shared.StateConnecting)
	epoch := s.connEpoch
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dial(epoch)
}

func (s *Session) dial(epoch uint64) {
	defer s.wg.Done()

	conn, err := s.cfg.Dial(s.cfg.URL)

	s.mu.Lock()
	if !s.wanted || s.connEpoch != epoch {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.log.Warn("dial failed", "error", err)
		s.setStateLocked(shared.StateDisconnected)
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		s.reportError(fmt.Errorf("dial: %w", err))
		return
	}

	s.conn = conn
	if err := conn.WriteMessage(websocket.BinaryMessage, wire.EncodeHandshake(s.cfg.Handshake)); err != nil {
		s.log.Warn("handshake send failed", "error", err)
		conn.Close()
		s.conn = nil
		s.setStateLocked(shared.StateDisconnected)
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		s.reportError(fmt.Errorf("send handshake: %w", err))
		return
	}
	s.setStateLocked(shared.StateHandshaking)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(conn, epoch)
}

func (s *Session) readLoop(conn Conn, epoch uint64) {
	defer s.wg.Done()

	handshook := false
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.onClosed(conn, epoch, err)
			return
		}

		switch msgType {
		case websocket.TextMessage:
			if !handshook {
				handshook = true
				s.onHandshakeAck(conn, epoch, data)
				continue
			}
			t, err := wire.ParseTranscript(data)
			if err != nil {
				s.log.Debug("dropping unparseable text message", "error", err)
				continue
			}
			if s.cb.OnTranscript != nil {
				s.cb.OnTranscript(t)
			}
		case websocket.BinaryMessage:
			if !handshook {
				// Binary before the ack is out of contract; drop it.
				s.log.Debug("dropping binary message before handshake ack")
				continue
			}
			if s.cb.OnAudio != nil {
				s.cb.OnAudio(data)
			}
		}
	}
}

func (s *Session) onHandshakeAck(conn Conn, epoch uint64, data []byte) {
	ack, err := wire.ParseHandshakeAck(data)
	if err != nil {
		s.log.Warn("bad handshake ack", "error", err)
		s.failConn(conn, epoch, err)
		return
	}
	if ack.Status == wire.StatusError {
		err := fmt.Errorf("handshake rejected: %s", ack.Message)
		s.log.Warn("handshake rejected", "message", ack.Message)
		s.failConn(conn, epoch, err)
		return
	}

	s.mu.Lock()
	if s.connEpoch != epoch {
		s.mu.Unlock()
		return
	}
	s.sessionID = ack.SessionID
	s.mode = ack.Mode
	s.setStateLocked(shared.StateReady)
	s.mu.Unlock()

	s.log.Info("session ready", "session_id", ack.SessionID, "mode", ack.Mode)
	if s.cb.OnReady != nil {
		s.cb.OnReady(ack.SessionID, ack.Mode)
	}
}

// failConn marks the session errored and closes the socket. The close wakes
// the read loop, whose normal close path owns reconnect scheduling.
func (s *Session) failConn(conn Conn, epoch uint64, err error) {
	s.mu.Lock()
	if s.connEpoch == epoch {
		s.setStateLocked(shared.StateError)
	}
	s.mu.Unlock()
	conn.Close()
	s.reportError(err)
}

func (s *Session) onClosed(conn Conn, epoch uint64, cause error) {
	s.mu.Lock()
	if s.connEpoch != epoch {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.sessionID = ""
	s.mode = ""
	wanted := s.wanted
	if s.state != shared.StateError {
		s.setStateLocked(shared.StateDisconnected)
	}
	if wanted {
		s.scheduleReconnectLocked()
	}
	s.mu.Unlock()

	conn.Close()
	if wanted {
		s.log.Info("connection closed, reconnect scheduled", "cause", cause, "delay", s.cfg.ReconnectDelay)
	}
}

func (s *Session) scheduleReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.connEpoch++
	s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.mu.Lock()
		if !s.wanted {
			s.mu.Unlock()
			return
		}
		s.setStateLocked(shared.StateConnecting)
		epoch := s.connEpoch
		s.mu.Unlock()

		s.wg.Add(1)
		go s.dial(epoch)
	})
}

// SendAudio forwards one frame while ready. It returns false otherwise and
// the frame is lost; callers must not expect queueing across reconnects.
func (s *Session) SendAudio(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != shared.StateReady || s.conn == nil {
		return false
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		s.log.Warn("audio send failed", "error", err)
		return false
	}
	return true
}

// Disconnect tears the session down. Idempotent and safe in any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.wanted = false
	s.connEpoch++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	conn := s.conn
	s.conn = nil
	s.sessionID = ""
	s.mode = ""
	s.setStateLocked(shared.StateDisconnected)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
}

func (s *Session) State() shared.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) setStateLocked(state shared.ConnectionState) {
	if s.state == state {
		return
	}
	s.state = state
	if s.cb.OnStateChange != nil {
		go s.cb.OnStateChange(state)
	}
}

func (s *Session) reportError(err error) {
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}
