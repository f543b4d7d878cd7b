package audio

// SampleComposer allocates sample buffers of a requested size. Stages that
// need scratch PCM storage (currently the Resampler) take one at
// construction so the audio path performs no further allocation once a
// session is warmed up.
type SampleComposer interface {
	Compose(n int) []int16
}

// ByteComposer allocates byte buffers of a requested size, used by the FEC
// decoder for reassembled repair payloads.
type ByteComposer interface {
	Compose(n int) []byte
}

// SliceSampleComposer is the trivial SampleComposer backed by make([]int16, n).
type SliceSampleComposer struct{}

// Compose implements SampleComposer.
func (SliceSampleComposer) Compose(n int) []int16 { return make([]int16, n) }

// SliceByteComposer is the trivial ByteComposer backed by make([]byte, n).
type SliceByteComposer struct{}

// Compose implements ByteComposer.
func (SliceByteComposer) Compose(n int) []byte { return make([]byte, n) }
