package audio

import "time"

// PacketReader is the capability shared by every stage in the packet half
// of the pipeline (queue, delayer, watchdog, FEC decoder). Read returns
// ok == false when there is nothing to return right now ("none"); it never
// blocks.
type PacketReader interface {
	Read() (Packet, bool)
}

// PacketWriter accepts a packet for storage or forwarding.
type PacketWriter interface {
	Write(p Packet)
}

// StreamReader is the capability shared by Streamer and Resampler: fill out
// completely with the channel's samples starting at the current stream
// position, advancing that position by exactly len(out).
type StreamReader interface {
	Read(out []int16)
}

// Tuner is a stage offering an update hook invoked once per tick, in
// registration order, before any sample is produced. A tuner that returns
// false is reporting its session as broken; the session is terminated.
type Tuner interface {
	Update() bool
}

// Clock abstracts wall-clock time so the Watchdog can be driven by a fake
// clock in tests. time.Now is the production implementation.
type Clock func() time.Time

// PacketParser turns a datagram's opaque payload bytes into a Packet.
// Endianness and exact wire layout are entirely the parser's concern; the
// core only consumes the parsed result.
type PacketParser interface {
	Parse(payload []byte) (Packet, bool)
}
