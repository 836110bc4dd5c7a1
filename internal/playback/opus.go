package playback

import (
	opus "gopkg.in/hraban/opus.v2"
)

const playbackChannels = 1

// opusDecoder wraps one decoder pinned to a sample rate. The queue
// recreates it when the backend switches rates mid-session.
type opusDecoder struct {
	sampleRate int
	dec        *opus.Decoder
}

func newOpusDecoder(sampleRate int) (*opusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, playbackChannels)
	if err != nil {
		return nil, err
	}
	return &opusDecoder{
		sampleRate: sampleRate,
		dec:        dec,
	}, nil
}

func (d *opusDecoder) decode(packet []byte) ([]int16, error) {
	// 120 ms is the longest frame opus allows.
	pcm := make([]int16, d.sampleRate*120/1000*playbackChannels)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, err
	}
	return pcm[:n*playbackChannels], nil
}
