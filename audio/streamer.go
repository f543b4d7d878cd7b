package audio

import "math"

// beepFrequencyHz is the diagnostic tone frequency used to fill gaps when
// EnableBeep is set, matching a single recognizable pitch rather than
// silence so operators can hear loss happening.
const beepFrequencyHz = 440.0

// Streamer produces a continuous PCM sample stream for one channel by
// draining audio packets from a Chanalyzer. Reads always fill the entire
// requested buffer: missing or late data is filled with silence or a
// diagnostic tone rather than stalling, and the stream position always
// advances by exactly len(out).
type Streamer struct {
	chanalyzer *Chanalyzer
	channel    int
	beep       bool
	sampleRate int

	pos       uint64
	backlog   []int16
	pending   *ChannelPacket
	tonePhase float64
}

// NewStreamer builds a Streamer for one channel of ch.
func NewStreamer(ch *Chanalyzer, channel int, sampleRate int, beep bool) *Streamer {
	return &Streamer{chanalyzer: ch, channel: channel, sampleRate: sampleRate, beep: beep}
}

// Position returns the current stream position, in samples.
func (s *Streamer) Position() uint64 { return s.pos }

func (s *Streamer) nextPacket() (ChannelPacket, bool) {
	if s.pending != nil {
		cp := *s.pending
		s.pending = nil
		return cp, true
	}
	return s.chanalyzer.Read(s.channel)
}

// Read implements StreamReader.
func (s *Streamer) Read(out []int16) {
	need := len(out)
	filled := 0
	cursor := s.pos

	for filled < need {
		if len(s.backlog) > 0 {
			n := copy(out[filled:], s.backlog)
			filled += n
			cursor += uint64(n)
			s.backlog = s.backlog[n:]
			continue
		}

		cp, ok := s.nextPacket()
		if !ok {
			break
		}
		if cp.Frames <= 0 {
			continue
		}

		end := cp.Timestamp + uint64(cp.Frames)
		if end <= cursor {
			// Late-arriving packet whose timestamp precedes the current
			// position: discard.
			continue
		}

		if cp.Timestamp > cursor {
			gapLen := int(cp.Timestamp - cursor)
			room := need - filled
			if gapLen >= room {
				s.fillGap(out[filled:need])
				cursor += uint64(room)
				filled = need
				s.pending = &cp
				break
			}
			s.fillGap(out[filled : filled+gapLen])
			filled += gapLen
			cursor += uint64(gapLen)
		}

		skip := 0
		if cp.Timestamp < cursor {
			skip = int(cursor - cp.Timestamp)
		}
		remaining := cp.Frames - skip
		if remaining <= 0 {
			continue
		}
		if cp.Gap {
			g := make([]int16, remaining)
			if s.beep {
				s.fillGap(g)
			}
			s.backlog = g
		} else {
			s.backlog = cp.Samples[skip:]
		}
	}

	if filled < need {
		s.fillGap(out[filled:need])
	}

	s.pos += uint64(need)
}

// fillGap writes silence, or a continuous diagnostic tone if beep is
// enabled, advancing the persistent tone phase so repeated gaps produce an
// uninterrupted pitch rather than clicking at buffer boundaries.
func (s *Streamer) fillGap(buf []int16) {
	if !s.beep || s.sampleRate <= 0 {
		for i := range buf {
			buf[i] = 0
		}
		return
	}
	step := 2 * math.Pi * beepFrequencyHz / float64(s.sampleRate)
	const amplitude = 8000
	for i := range buf {
		buf[i] = int16(amplitude * math.Sin(s.tonePhase))
		s.tonePhase += step
		if s.tonePhase > 2*math.Pi {
			s.tonePhase -= 2 * math.Pi
		}
	}
}
