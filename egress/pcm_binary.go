// Package egress fans the server's mixed PCM output out to downstream
// consumers: a binary-framed WebSocket broadcast (optionally
// zstd-compressed) and an MQTT telemetry summary, both adapted from the
// source SDR server's own client-facing egress formats. The package also
// provides an OpusEncoder, which the WebSocket writer does not use.
package egress

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Binary PCM frame format, hybrid full/minimal header, unchanged in shape
// from the source server's own WebSocket PCM framing:
//
// FULL HEADER (29 bytes): magic(2) version(1) format(1) timestamp(8)
// wallclock_ms(8) sample_rate(4) channels(1) reserved(4), then PCM data.
//
// MINIMAL HEADER (13 bytes): magic(2) version(1) timestamp(8) reserved(2),
// then PCM data. Sent whenever sample rate and channel count haven't
// changed since the last full header.
const (
	pcmMagicFull    uint16 = 0x5043 // "PC"
	pcmMagicMinimal uint16 = 0x504D // "PM"
	pcmVersion      uint8  = 1

	pcmFormatUncompressed uint8 = 0
	pcmFormatZstd         uint8 = 2

	pcmFullHeaderSize    = 29
	pcmMinimalHeaderSize = 13
)

// PCMBinaryEncoder frames mixed PCM buffers for WebSocket transmission,
// sending a full metadata header only on the first frame or when sample
// rate/channel count changes, and a minimal header otherwise.
type PCMBinaryEncoder struct {
	useCompression bool
	zstdEncoder    *zstd.Encoder
	mu             sync.Mutex

	lastSampleRate int
	lastChannels   int
}

// NewPCMBinaryEncoder builds an encoder, optionally zstd-compressing
// every frame at the given level.
func NewPCMBinaryEncoder(useCompression bool, level int) *PCMBinaryEncoder {
	e := &PCMBinaryEncoder{
		useCompression: useCompression,
		lastSampleRate: -1,
		lastChannels:   -1,
	}
	if useCompression {
		e.zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel(level)))
	}
	return e
}

// encoderLevel maps the config's small integer compression level onto
// zstd's named speed/compression tradeoff levels.
func encoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 3:
		return zstd.SpeedDefault
	case level <= 6:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// Encode frames pcm (interleaved int16 samples, big-endian on the wire)
// at timestamp, sampleRate and channels into one binary frame.
func (e *PCMBinaryEncoder) Encode(pcm []int16, timestamp uint64, sampleRate, channels int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	needFull := e.lastSampleRate != sampleRate || e.lastChannels != channels

	data := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.BigEndian.PutUint16(data[2*i:], uint16(s))
	}

	var frame []byte
	if needFull {
		frame = e.buildFullHeader(data, timestamp, sampleRate, channels)
		e.lastSampleRate = sampleRate
		e.lastChannels = channels
	} else {
		frame = e.buildMinimalHeader(data, timestamp)
	}

	if e.useCompression && e.zstdEncoder != nil {
		return e.zstdEncoder.EncodeAll(frame, make([]byte, 0, len(frame)))
	}
	return frame
}

func (e *PCMBinaryEncoder) buildFullHeader(data []byte, timestamp uint64, sampleRate, channels int) []byte {
	frame := make([]byte, pcmFullHeaderSize+len(data))
	off := 0
	binary.BigEndian.PutUint16(frame[off:], pcmMagicFull)
	off += 2
	frame[off] = pcmVersion
	off++
	if e.useCompression {
		frame[off] = pcmFormatZstd
	} else {
		frame[off] = pcmFormatUncompressed
	}
	off++
	binary.BigEndian.PutUint64(frame[off:], timestamp)
	off += 8
	binary.BigEndian.PutUint64(frame[off:], uint64(time.Now().UnixMilli()))
	off += 8
	binary.BigEndian.PutUint32(frame[off:], uint32(sampleRate))
	off += 4
	frame[off] = byte(channels)
	off++
	binary.BigEndian.PutUint32(frame[off:], 0)
	off += 4
	copy(frame[off:], data)
	return frame
}

func (e *PCMBinaryEncoder) buildMinimalHeader(data []byte, timestamp uint64) []byte {
	frame := make([]byte, pcmMinimalHeaderSize+len(data))
	off := 0
	binary.BigEndian.PutUint16(frame[off:], pcmMagicMinimal)
	off += 2
	frame[off] = pcmVersion
	off++
	binary.BigEndian.PutUint64(frame[off:], timestamp)
	off += 8
	binary.BigEndian.PutUint16(frame[off:], 0)
	off += 2
	copy(frame[off:], data)
	return frame
}
