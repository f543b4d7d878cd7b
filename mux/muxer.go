// Package mux implements the server-level channel mixer: the ISink that
// every live session's per-channel readers attach to, and that sums them
// into one interleaved PCM output buffer per tick.
package mux

import (
	"math"
	"sync"

	"github.com/cwsl/audioreceiver/audio"
)

// Muxer implements session.Sink. For each channel in the configured output
// mask, it sums every attached reader's samples into that channel's
// interleaved output positions, accumulating in a wider-than-output
// precision to avoid overflow and saturating to the sample range on
// write-out.
type Muxer struct {
	mask           audio.ChannelMask
	samplesPerTick int

	mu        sync.Mutex
	listeners map[int]map[audio.StreamReader]struct{}

	scratch []int16
	acc     []int32
}

// New builds a Muxer for the given output channel mask, pre-sizing its
// per-channel scratch and accumulator buffers for samplesPerTick-sized
// ticks. Read still allocates a small per-call snapshot of the attached
// readers.
func New(mask audio.ChannelMask, samplesPerTick int) *Muxer {
	return &Muxer{
		mask:           mask,
		samplesPerTick: samplesPerTick,
		listeners:      make(map[int]map[audio.StreamReader]struct{}),
		scratch:        make([]int16, samplesPerTick),
		acc:            make([]int32, samplesPerTick),
	}
}

// AttachReader implements session.Sink.
func (m *Muxer) AttachReader(channel int, r audio.StreamReader) {
	if !m.mask.Has(channel) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.listeners[channel]
	if !ok {
		set = make(map[audio.StreamReader]struct{})
		m.listeners[channel] = set
	}
	set[r] = struct{}{}
}

// DetachReader implements session.Sink.
func (m *Muxer) DetachReader(channel int, r audio.StreamReader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.listeners[channel]; ok {
		delete(set, r)
	}
}

// Read fills out, which must be exactly samplesPerTick * NumChannels(mask)
// long, by reading samplesPerTick samples from every attached reader on
// each output channel and saturating-summing them into that channel's
// interleaved positions.
func (m *Muxer) Read(out []int16, samplesPerTick int) {
	n := m.mask.NumChannels()
	if len(out) != samplesPerTick*n {
		panic("mux: output buffer size must equal samples_per_tick * n_output_channels")
	}
	for i := range out {
		out[i] = 0
	}

	m.mu.Lock()
	// Snapshot per-channel reader lists so Read calls happen outside the
	// lock: a session's own Update/Store never touches the mux lock, but
	// attach/detach can race with a tick's Read from another goroutine in
	// a hosting program that chooses to parallelize I/O around the core.
	snapshot := make(map[int][]audio.StreamReader, len(m.listeners))
	for ch, set := range m.listeners {
		readers := make([]audio.StreamReader, 0, len(set))
		for r := range set {
			readers = append(readers, r)
		}
		snapshot[ch] = readers
	}
	m.mu.Unlock()

	idx := 0
	for ch := 0; ch < audio.MaxChannels; ch++ {
		if !m.mask.Has(ch) {
			continue
		}
		for i := range m.acc {
			m.acc[i] = 0
		}
		for _, r := range snapshot[ch] {
			r.Read(m.scratch)
			for i, s := range m.scratch {
				m.acc[i] += int32(s)
			}
		}
		for f := 0; f < samplesPerTick; f++ {
			out[f*n+idx] = saturate(m.acc[f])
		}
		idx++
	}
}

func saturate(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
