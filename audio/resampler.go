package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// Polyphase interpolation kernel shape. The kernel is generated once at
// package init from a windowed-sinc prototype (gonum's Blackman window)
// and shared read-only by every Resampler; only the fractional phase
// selection and the per-channel input history differ between instances.
const (
	resamplerPhases       = 64
	resamplerTapsPerPhase = 8
	resamplerPullChunk    = 64
)

var resamplerKernel [][]float64

func init() {
	resamplerKernel = buildPolyphaseKernel(resamplerPhases, resamplerTapsPerPhase)
}

// buildPolyphaseKernel builds a phases x tapsPerPhase interpolation kernel
// by windowing a sinc low-pass prototype of length phases*tapsPerPhase and
// decimating it into its polyphase branches, each normalized to unit gain.
func buildPolyphaseKernel(phases, tapsPerPhase int) [][]float64 {
	m := phases * tapsPerPhase
	proto := make([]float64, m)
	center := float64(m-1) / 2
	for i := range proto {
		x := float64(i) - center
		if x == 0 {
			proto[i] = 1.0
			continue
		}
		px := math.Pi * x / float64(phases)
		proto[i] = math.Sin(px) / px
	}
	window.Blackman(proto)

	kernel := make([][]float64, phases)
	for p := 0; p < phases; p++ {
		row := make([]float64, tapsPerPhase)
		var sum float64
		for t := 0; t < tapsPerPhase; t++ {
			idx := p + t*phases
			if idx < m {
				row[t] = proto[idx]
			}
			sum += row[t]
		}
		if sum != 0 {
			for t := range row {
				row[t] /= sum
			}
		}
		kernel[p] = row
	}
	return kernel
}

// Resampler wraps a StreamReader and rate-converts it at a ratio updated
// only by its owning Scaler. Ratio is expressed as input samples consumed
// per output sample produced: 1.0 is unity, >1.0 drains a growing input
// backlog faster, <1.0 stretches a shrinking one. Output length always
// equals the requested length; internal history survives across calls so
// no discontinuities are introduced at the kernel's edges.
type Resampler struct {
	upstream StreamReader
	ratio    float64

	pullBuf   []int16
	history   []int16
	histStart float64 // absolute input-sample index of history[0]
	outPos    float64 // absolute input-sample index the next output sample interpolates around
}

// NewResampler builds a Resampler pulling from upstream, using composer to
// allocate its fixed scratch buffers once.
func NewResampler(upstream StreamReader, composer SampleComposer) *Resampler {
	if composer == nil {
		composer = SliceSampleComposer{}
	}
	half := resamplerTapsPerPhase / 2
	r := &Resampler{
		upstream: upstream,
		ratio:    1.0,
		pullBuf:  composer.Compose(resamplerPullChunk),
		history:  composer.Compose(half),
	}
	r.histStart = -float64(half)
	return r
}

// SetRatio updates the resampling ratio. The Scaler is the only caller.
func (r *Resampler) SetRatio(ratio float64) { r.ratio = ratio }

// Ratio returns the current resampling ratio.
func (r *Resampler) Ratio() float64 { return r.ratio }

// Read implements StreamReader.
func (r *Resampler) Read(out []int16) {
	half := resamplerTapsPerPhase / 2
	for i := range out {
		r.ensureHistory(half)

		base := int(math.Floor(r.outPos))
		frac := r.outPos - float64(base)
		phase := int(frac * float64(resamplerPhases))
		if phase >= resamplerPhases {
			phase = resamplerPhases - 1
		}
		row := resamplerKernel[phase]

		var acc float64
		for t := 0; t < resamplerTapsPerPhase; t++ {
			srcIdx := base - half + t - int(r.histStart)
			if srcIdx >= 0 && srcIdx < len(r.history) {
				acc += float64(r.history[srcIdx]) * row[t]
			}
		}
		out[i] = clampInt16(acc)
		r.outPos += r.ratio
	}
}

// ensureHistory pulls fresh input samples until the history buffer covers
// the window the kernel needs around the current output position, then
// trims samples that have fallen out of that window.
func (r *Resampler) ensureHistory(half int) {
	neededEnd := r.outPos + float64(half) + 1
	for r.histStart+float64(len(r.history)) < neededEnd {
		r.upstream.Read(r.pullBuf)
		r.history = append(r.history, r.pullBuf...)
	}

	trimTo := int(r.outPos) - half - int(r.histStart)
	if trimTo > 0 && trimTo < len(r.history) {
		r.history = r.history[trimTo:]
		r.histStart += float64(trimTo)
	}
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
