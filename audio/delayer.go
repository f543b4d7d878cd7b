package audio

// Delayer wraps an upstream packet reader and withholds packets until the
// cumulative duration of buffered-but-not-yet-emitted packets reaches the
// configured target latency, establishing a jitter buffer at stream start.
// Once warm it passes packets through 1:1.
type Delayer struct {
	upstream     PacketReader
	targetFrames int
	buffered     []Packet
	bufferedLen  int
	warm         bool
}

// NewDelayer builds a Delayer that withholds until targetFrames worth of
// audio has accumulated from upstream.
func NewDelayer(upstream PacketReader, targetFrames int) *Delayer {
	return &Delayer{upstream: upstream, targetFrames: targetFrames}
}

// Read implements PacketReader.
func (d *Delayer) Read() (Packet, bool) {
	for {
		p, ok := d.upstream.Read()
		if !ok {
			break
		}
		d.buffered = append(d.buffered, p)
		if t, ok := p.(Timed); ok {
			d.bufferedLen += t.FrameCount()
		}
	}

	if !d.warm {
		if d.bufferedLen < d.targetFrames {
			return nil, false
		}
		d.warm = true
	}

	if len(d.buffered) == 0 {
		return nil, false
	}

	p := d.buffered[0]
	d.buffered = d.buffered[1:]
	if t, ok := p.(Timed); ok {
		d.bufferedLen -= t.FrameCount()
	}
	return p, true
}
