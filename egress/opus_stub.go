//go:build !opus
// +build !opus

package egress

import "log"

// OpusEncoder is the stub used when the opus build tag is absent: it
// always falls back to raw PCM framing.
type OpusEncoder struct{}

// NewOpusEncoder builds a disabled stub, warning if Opus was requested
// but not compiled in.
func NewOpusEncoder(enabled bool, sampleRate, bitrate, complexity int) *OpusEncoder {
	if enabled {
		log.Printf("egress: opus encoding requested but not compiled in")
		log.Printf("egress: rebuild with -tags opus to enable it")
	}
	return &OpusEncoder{}
}

// Encode always reports disabled in the stub build.
func (w *OpusEncoder) Encode(pcm []int16) (frame []byte, ok bool) { return nil, false }

// IsEnabled always returns false in the stub build.
func (w *OpusEncoder) IsEnabled() bool { return false }
