//go:build opus
// +build opus

package egress

import (
	"log"

	opus "gopkg.in/hraban/opus.v2"
)

// OpusEncoder wraps the Opus encoder for the websocket egress path,
// compiled in only when the opus build tag is set (requires libopus
// headers at build time).
type OpusEncoder struct {
	encoder *opus.Encoder
	enabled bool
}

// NewOpusEncoder builds an Opus encoder for sampleRate mono audio, or a
// disabled stub if cfg disables it or initialization fails.
func NewOpusEncoder(enabled bool, sampleRate, bitrate, complexity int) *OpusEncoder {
	w := &OpusEncoder{}
	if !enabled {
		return w
	}

	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		log.Printf("egress: opus encoding requested but failed to initialize: %v", err)
		log.Printf("egress: falling back to PCM")
		return w
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		log.Printf("egress: warning: failed to set opus bitrate: %v", err)
	}
	if err := enc.SetComplexity(complexity); err != nil {
		log.Printf("egress: warning: failed to set opus complexity: %v", err)
	}

	w.encoder = enc
	w.enabled = true
	log.Printf("egress: opus encoder initialized: %d Hz, %d bps, complexity %d", sampleRate, bitrate, complexity)
	return w
}

// Encode encodes pcm to an Opus frame. If Opus is disabled it returns
// ok=false so the caller falls back to raw PCM framing.
func (w *OpusEncoder) Encode(pcm []int16) (frame []byte, ok bool) {
	if !w.enabled || w.encoder == nil {
		return nil, false
	}
	buf := make([]byte, 4000)
	n, err := w.encoder.Encode(pcm, buf)
	if err != nil {
		log.Printf("egress: opus encoding error, falling back to pcm: %v", err)
		return nil, false
	}
	return buf[:n], true
}

// IsEnabled reports whether Opus encoding is active.
func (w *OpusEncoder) IsEnabled() bool { return w.enabled }
