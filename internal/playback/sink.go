package playback

import (
	"context"
	"time"
)

// PlayFunc receives each item's decoded PCM as it starts playing.
type PlayFunc func(pcm []int16, sampleRate int)

// PacedSink is the default Sink: it hands PCM to fn and then holds the
// queue for the clip's real-time duration, so queued items come out at
// playback speed instead of as fast as they decode. Cancelling the context
// releases the hold early.
type PacedSink struct {
	fn PlayFunc
}

func NewPacedSink(fn PlayFunc) *PacedSink {
	return &PacedSink{fn: fn}
}

func (s *PacedSink) Play(ctx context.Context, pcm []int16, sampleRate int) error {
	if s.fn != nil {
		s.fn(pcm, sampleRate)
	}
	if sampleRate <= 0 || len(pcm) == 0 {
		return nil
	}

	d := time.Duration(len(pcm)) * time.Second / time.Duration(sampleRate)
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
