package audio

// FillReader reports a PacketQueue's current occupancy, the proxy signal
// the Scaler uses for sender-vs-receiver clock drift.
type FillReader interface {
	Len() int
}

// Ratioed is implemented by Resampler; the Scaler drives every Ratioed it
// owns to a single common ratio per session.
type Ratioed interface {
	SetRatio(float64)
	Ratio() float64
}

// ScalerConfig tunes the Scaler's PI control law.
type ScalerConfig struct {
	Setpoint        int     // target queue fill level
	Kp              float64 // proportional gain
	Ki              float64 // integral gain
	MaxDeviation    float64 // ratio stays within [1-MaxDeviation, 1+MaxDeviation]
	MaxRatioStep    float64 // cap on |ratio(t) - ratio(t-1)| per tick
	SaturationTicks int     // consecutive saturated ticks tolerated before reporting broken
}

// Scaler observes one PacketQueue's fill level as a proxy for clock drift
// between sender and receiver, and drives every Resampler it owns to a
// single shared ratio. It is a Tuner: Update returns false once the ratio
// has been pinned at its bound for longer than the configured tolerance.
type Scaler struct {
	queue  FillReader
	cfg    ScalerConfig
	ratio  float64
	integ  float64
	resamp []Ratioed

	satTicks int
}

// NewScaler builds a Scaler observing queue's fill level.
func NewScaler(queue FillReader, cfg ScalerConfig) *Scaler {
	return &Scaler{queue: queue, cfg: cfg, ratio: 1.0}
}

// AddResampler registers a Resampler to be driven by this Scaler. All
// resamplers added to one Scaler always see the same ratio.
func (s *Scaler) AddResampler(r Ratioed) {
	s.resamp = append(s.resamp, r)
}

// Update implements Tuner.
func (s *Scaler) Update() bool {
	errVal := float64(s.queue.Len() - s.cfg.Setpoint)
	s.integ += errVal

	lo := 1 - s.cfg.MaxDeviation
	hi := 1 + s.cfg.MaxDeviation
	if s.cfg.Ki > 0 {
		limit := s.cfg.MaxDeviation / s.cfg.Ki
		if s.integ > limit {
			s.integ = limit
		} else if s.integ < -limit {
			s.integ = -limit
		}
	}

	target := 1 + s.cfg.Kp*errVal + s.cfg.Ki*s.integ
	if target > hi {
		target = hi
	}
	if target < lo {
		target = lo
	}

	step := target - s.ratio
	if step > s.cfg.MaxRatioStep {
		step = s.cfg.MaxRatioStep
	} else if step < -s.cfg.MaxRatioStep {
		step = -s.cfg.MaxRatioStep
	}
	s.ratio += step

	if s.ratio >= hi || s.ratio <= lo {
		s.satTicks++
	} else {
		s.satTicks = 0
	}

	for _, r := range s.resamp {
		r.SetRatio(s.ratio)
	}

	return s.satTicks <= s.cfg.SaturationTicks
}

// Ratio returns the scaler's current shared ratio.
func (s *Scaler) Ratio() float64 { return s.ratio }
