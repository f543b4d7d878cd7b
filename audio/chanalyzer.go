package audio

// ChannelPacket is one channel's slice of samples carved out of a single
// multichannel audio packet, or a gap marker of known frame length.
type ChannelPacket struct {
	Timestamp uint64
	Frames    int
	Samples   []int16 // nil when Gap is true
	Gap       bool
}

// Chanalyzer splits a multichannel audio packet stream into per-channel
// views. Each incoming packet is consumed exactly once from upstream and
// fanned out to every active channel's own queue, so concurrent per-channel
// reads within one tick observe the same underlying packet sequence.
type Chanalyzer struct {
	upstream PacketReader
	mask     ChannelMask
	queues   map[int][]ChannelPacket
}

// NewChanalyzer builds a Chanalyzer over the given channel mask.
func NewChanalyzer(upstream PacketReader, mask ChannelMask) *Chanalyzer {
	c := &Chanalyzer{upstream: upstream, mask: mask, queues: make(map[int][]ChannelPacket, mask.NumChannels())}
	for ch := 0; ch < MaxChannels; ch++ {
		if mask.Has(ch) {
			c.queues[ch] = nil
		}
	}
	return c
}

// Read returns the next ChannelPacket for channel ch, pulling and fanning
// out new upstream packets until one is available for ch.
func (c *Chanalyzer) Read(ch int) (ChannelPacket, bool) {
	q := c.queues[ch]
	for len(q) == 0 {
		p, ok := c.upstream.Read()
		if !ok {
			return ChannelPacket{}, false
		}
		c.fanout(p)
		q = c.queues[ch]
	}
	cp := q[0]
	c.queues[ch] = q[1:]
	return cp, true
}

func (c *Chanalyzer) fanout(p Packet) {
	switch v := p.(type) {
	case *AudioPacket:
		frames := v.Frames()
		n := v.ChannelMask.NumChannels()
		if frames == 0 || n == 0 {
			return
		}
		idx := 0
		for ch := 0; ch < MaxChannels; ch++ {
			if !v.ChannelMask.Has(ch) {
				continue
			}
			if q, ours := c.queues[ch]; ours {
				samples := make([]int16, frames)
				for f := 0; f < frames; f++ {
					samples[f] = v.PCM[f*n+idx]
				}
				c.queues[ch] = append(q, ChannelPacket{Timestamp: v.Timestamp, Frames: frames, Samples: samples})
			}
			idx++
		}
	case *GapPacket:
		for ch, q := range c.queues {
			c.queues[ch] = append(q, ChannelPacket{Timestamp: v.Timestamp, Frames: v.Frames, Gap: true})
		}
	}
}
