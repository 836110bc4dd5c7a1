package segmenter

import (
	"sync"
	"time"

	"github.com/eum-collab/translation-backend/internal/audio"
)

type FlushReason string

const (
	ReasonUtteranceComplete FlushReason = "utterance_complete"
	ReasonForcedSend        FlushReason = "forced_send"
	ReasonBufferFull        FlushReason = "buffer_full"
)

// Config carries the segmentation thresholds. The values are heuristic,
// tuned against real call audio rather than derived from first principles;
// recalibrate freely but keep the four-way decision structure.
type Config struct {
	SpeechThreshold  float32
	SilenceThreshold float32
	SilenceDuration  time.Duration
	ForcedInterval   time.Duration
	MaxBuffered      time.Duration
	CaptureRate      int
	TargetRate       int
	AnalysisFrames   int
}

const (
	DefaultCaptureRate = 48000
	DefaultTargetRate  = 16000

	// TickInterval is how often callers should drive Tick.
	TickInterval = 30 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.SpeechThreshold == 0 {
		c.SpeechThreshold = 0.006
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = 0.004
	}
	if c.SilenceDuration == 0 {
		c.SilenceDuration = 350 * time.Millisecond
	}
	if c.ForcedInterval == 0 {
		c.ForcedInterval = 2500 * time.Millisecond
	}
	if c.MaxBuffered == 0 {
		c.MaxBuffered = 5 * time.Second
	}
	if c.CaptureRate == 0 {
		c.CaptureRate = DefaultCaptureRate
	}
	if c.TargetRate == 0 {
		c.TargetRate = DefaultTargetRate
	}
	if c.AnalysisFrames == 0 {
		c.AnalysisFrames = 5
	}
	return c
}

// Flush is one utterance handed to the wire layer: target-rate int16 PCM.
type Flush struct {
	Reason  FlushReason
	PCM     []byte
	Samples int
}

// Segmenter accumulates one speaker's capture frames and decides when the
// buffer becomes an utterance. It is passive: the capture callback appends
// frames via AddFrame and a periodic tick drives Tick. Only those two
// touch the buffer, so a single mutex covers everything.
type Segmenter struct {
	cfg Config

	mu               sync.Mutex
	frames           [][]float32
	buffered         int
	speaking         bool
	silenceStartedAt time.Time
	lastFlushedAt    time.Time
}

func New(cfg Config) *Segmenter {
	return &Segmenter{
		cfg:           cfg.withDefaults(),
		lastFlushedAt: time.Now(),
	}
}

// AddFrame appends one capture-rate frame of normalized samples.
func (s *Segmenter) AddFrame(frame []float32) {
	if len(frame) == 0 {
		return
	}
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.buffered += len(frame)
	s.mu.Unlock()
}

// Tick runs one analysis pass and returns a flush if one is due, nil
// otherwise.
func (s *Segmenter) Tick(now time.Time) *Flush {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := s.recentRMS()

	if level >= s.cfg.SpeechThreshold {
		s.speaking = true
		s.silenceStartedAt = time.Time{}
	} else if level < s.cfg.SilenceThreshold && s.speaking && s.silenceStartedAt.IsZero() {
		s.silenceStartedAt = now
	}

	switch {
	case s.speaking && !s.silenceStartedAt.IsZero() && now.Sub(s.silenceStartedAt) >= s.cfg.SilenceDuration:
		s.speaking = false
		s.silenceStartedAt = time.Time{}
		return s.flushLocked(ReasonUtteranceComplete, now)

	case now.Sub(s.lastFlushedAt) >= s.cfg.ForcedInterval:
		if s.buffered == 0 {
			s.lastFlushedAt = now
			return nil
		}
		return s.flushLocked(ReasonForcedSend, now)

	case s.targetSamplesLocked() >= int(s.cfg.MaxBuffered.Seconds()*float64(s.cfg.TargetRate)):
		s.speaking = false
		s.silenceStartedAt = time.Time{}
		return s.flushLocked(ReasonBufferFull, now)
	}

	return nil
}

// Buffered reports how many capture-rate samples are pending.
func (s *Segmenter) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

func (s *Segmenter) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Reset drops pending audio without producing a flush.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	s.frames = nil
	s.buffered = 0
	s.speaking = false
	s.silenceStartedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Segmenter) recentRMS() float32 {
	n := s.cfg.AnalysisFrames
	if len(s.frames) < n {
		n = len(s.frames)
	}
	if n == 0 {
		return 0
	}
	recent := s.frames[len(s.frames)-n:]
	total := 0
	for _, f := range recent {
		total += len(f)
	}
	window := make([]float32, 0, total)
	for _, f := range recent {
		window = append(window, f...)
	}
	return audio.RMS(window)
}

func (s *Segmenter) targetSamplesLocked() int {
	return s.buffered * s.cfg.TargetRate / s.cfg.CaptureRate
}

func (s *Segmenter) flushLocked(reason FlushReason, now time.Time) *Flush {
	joined := make([]float32, 0, s.buffered)
	for _, f := range s.frames {
		joined = append(joined, f...)
	}
	s.frames = nil
	s.buffered = 0
	s.lastFlushedAt = now

	resampled := audio.Resample(joined, s.cfg.CaptureRate, s.cfg.TargetRate)
	samples := audio.FloatToInt16(resampled)
	return &Flush{
		Reason:  reason,
		PCM:     audio.Int16ToPCMBytes(samples),
		Samples: len(samples),
	}
}
