package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwsl/audioreceiver/audio"
)

type fixedStreamReader struct{ values []int16 }

func (f *fixedStreamReader) Read(out []int16) {
	copy(out, f.values)
}

func TestMuxerPassesThroughSingleReader(t *testing.T) {
	m := New(audio.ChannelMask(1), 3)
	r := &fixedStreamReader{values: []int16{100, 200, 300}}
	m.AttachReader(0, r)

	out := make([]int16, 3)
	m.Read(out, 3)

	assert.Equal(t, []int16{100, 200, 300}, out)
}

func TestMuxerSumsAndSaturatesOnOverflow(t *testing.T) {
	m := New(audio.ChannelMask(1), 3)
	m.AttachReader(0, &fixedStreamReader{values: []int16{30000, 1, 2}})
	m.AttachReader(0, &fixedStreamReader{values: []int16{30000, 1, 2}})

	out := make([]int16, 3)
	m.Read(out, 3)

	assert.Equal(t, []int16{32767, 2, 4}, out)
}

func TestMuxerInterleavesMultipleChannels(t *testing.T) {
	m := New(audio.ChannelMask(0b11), 2)
	m.AttachReader(0, &fixedStreamReader{values: []int16{1, 2}})
	m.AttachReader(1, &fixedStreamReader{values: []int16{10, 20}})

	out := make([]int16, 4)
	m.Read(out, 2)

	assert.Equal(t, []int16{1, 10, 2, 20}, out)
}

func TestMuxerDetachReaderStopsContributing(t *testing.T) {
	m := New(audio.ChannelMask(1), 2)
	r := &fixedStreamReader{values: []int16{9, 9}}
	m.AttachReader(0, r)
	m.DetachReader(0, r)

	out := make([]int16, 2)
	m.Read(out, 2)

	assert.Equal(t, []int16{0, 0}, out)
}

func TestMuxerIgnoresAttachOutsideMask(t *testing.T) {
	m := New(audio.ChannelMask(1), 2) // only channel 0 enabled
	r := &fixedStreamReader{values: []int16{9, 9}}

	assert.NotPanics(t, func() { m.AttachReader(1, r) })

	out := make([]int16, 2)
	assert.NotPanics(t, func() { m.Read(out, 2) })
	assert.Equal(t, []int16{0, 0}, out)
}

func TestMuxerPanicsOnWrongBufferSize(t *testing.T) {
	m := New(audio.ChannelMask(0b11), 4)
	out := make([]int16, 3)
	assert.Panics(t, func() {
		m.Read(out, 4)
	})
}
