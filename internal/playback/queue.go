package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eum-collab/translation-backend/internal/audio"
)

// Item is one pending playback. Data is either raw little-endian int16 PCM
// or an opus packet, at the declared sample rate.
type Item struct {
	Data          []byte
	SampleRate    int
	Encoded       bool
	ParticipantID string
}

// Sink renders decoded PCM and returns once playback has completed. The
// queue is the only caller, so sinks never see concurrent Play calls.
type Sink interface {
	Play(ctx context.Context, pcm []int16, sampleRate int) error
}

// Queue serializes playback through one shared sink: strict FIFO, at most
// one active item no matter how fast producers enqueue. Start/end hooks
// exist so the orchestrator can duck the speaker's live audio while their
// translated voice plays.
type Queue struct {
	sink    Sink
	decoder *opusDecoder
	log     *slog.Logger

	mu      sync.Mutex
	items   []Item
	ctx     context.Context
	cancel  context.CancelFunc
	playing bool
	gen     uint64
	onStart func(participantID string)
	onEnd   func(participantID string)
}

func NewQueue(sink Sink, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		sink: sink,
		log:  log.With("component", "playback"),
	}
}

func (q *Queue) SetCallbacks(onStart, onEnd func(participantID string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onStart = onStart
	q.onEnd = onEnd
}

// Enqueue appends the item and starts the consumer if it is idle.
func (q *Queue) Enqueue(ctx context.Context, item Item) {
	q.mu.Lock()
	wasIdle := len(q.items) == 0 && !q.playing
	q.items = append(q.items, item)
	if wasIdle {
		q.ctx, q.cancel = context.WithCancel(ctx)
		q.gen++
	}
	gen := q.gen
	q.mu.Unlock()

	if wasIdle {
		go q.consume(gen)
	}
}

func (q *Queue) consume(gen uint64) {
	for {
		q.mu.Lock()
		if q.gen != gen {
			// Superseded by a Stop; a fresh consumer owns the queue now.
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			q.playing = false
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.playing = true
		ctx := q.ctx
		onStart := q.onStart
		onEnd := q.onEnd
		q.mu.Unlock()

		pcm, err := q.decode(item)
		if err != nil {
			q.log.Warn("dropping undecodable playback item", "participant", item.ParticipantID, "error", err)
			continue
		}
		if len(pcm) == 0 {
			continue
		}

		// A Stop during decode supersedes this consumer; bail before the
		// start hook fires so ducking is never left engaged.
		q.mu.Lock()
		stale := q.gen != gen
		q.mu.Unlock()
		if stale {
			return
		}

		if onStart != nil {
			onStart(item.ParticipantID)
		}
		err = q.sink.Play(ctx, pcm, item.SampleRate)
		if ctx.Err() != nil {
			// Stopped mid-item: no end callback, the queue was already
			// cleared under the lock.
			return
		}
		if err != nil {
			q.log.Warn("sink playback failed", "participant", item.ParticipantID, "error", err)
		}
		if onEnd != nil {
			onEnd(item.ParticipantID)
		}
	}
}

func (q *Queue) decode(item Item) ([]int16, error) {
	if !item.Encoded {
		return audio.PCMBytesToInt16(item.Data), nil
	}
	// A superseded consumer can still be in here when its replacement
	// arrives, so the decoder is only touched under the lock.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.decoder == nil || q.decoder.sampleRate != item.SampleRate {
		dec, err := newOpusDecoder(item.SampleRate)
		if err != nil {
			return nil, err
		}
		q.decoder = dec
	}
	return q.decoder.decode(item.Data)
}

// Stop clears pending items and halts the active one. Cleared items fire
// no callbacks. Safe to call at any time, repeatedly.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.items = nil
	q.gen++
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.ctx = nil
	q.playing = false
	q.mu.Unlock()
}

func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing || len(q.items) > 0
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
