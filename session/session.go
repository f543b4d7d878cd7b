// Package session owns the per-sender pipeline: one Session wires together
// every stage of the audio package into the fixed chain the spec
// describes, and exposes the store/update/attach contract the
// SessionManager and ChannelMuxer drive it through.
package session

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cwsl/audioreceiver/audio"
	"github.com/cwsl/audioreceiver/fec"
)

// Key identifies a session uniquely: the sender's transport address.
type Key struct {
	Addr string
	Port string
}

func (k Key) String() string { return k.Addr + ":" + k.Port }

// Config carries every construction-time parameter a Session needs. It is
// copied from the server-wide configuration once per session so that a
// session's pipeline is immutable for its whole lifetime even if the
// server config is mutated later (it isn't, but the copy keeps the
// invariant obviously true).
type Config struct {
	Channels          audio.ChannelMask
	SampleRate        int
	MaxSessionPackets int
	Latency           time.Duration
	Timeout           time.Duration

	EnableResampling bool
	EnableLDPC       bool
	EnableBeep       bool

	FEC audio.FECConfig

	Scaler audio.ScalerConfig

	SampleComposer audio.SampleComposer
	Clock          audio.Clock
}

// Session owns one sender's whole pipeline: router, queues, delayer,
// watchdog, optional FEC decoder, chanalyzer, one streamer (and optional
// resampler) per active channel, one scaler, and the tuner/reader handles
// the SessionManager and ChannelMuxer use. The pipeline is constructed
// once and is immutable thereafter.
type Session struct {
	key    Key
	id     uuid.UUID
	parser audio.PacketParser
	cfg    Config

	audioQueue *audio.PacketQueue
	fecQueue   *audio.PacketQueue
	router     *audio.Router
	fecDecode  *audio.FECDecoder
	scaler     *audio.Scaler

	tuners []audio.Tuner

	readers map[int]audio.StreamReader // channel -> final reader, attach/detach table

	warm bool
}

// New constructs a Session's whole pipeline for key, wired against parser.
// Construction order is fixed and matches spec.md §4.10: audio queue ->
// router route -> delayer -> watchdog (tuner) -> optional FEC stage ->
// optional scaler wrap (tuner) -> chanalyzer -> per-channel streamer ->
// optional per-channel resampler (registered with the scaler).
func New(key Key, parser audio.PacketParser, cfg Config) *Session {
	if cfg.Channels == 0 {
		panic("session: channel mask is zero")
	}
	if cfg.MaxSessionPackets <= 0 {
		panic("session: max session packets must be positive")
	}

	s := &Session{
		key:     key,
		id:      uuid.New(),
		parser:  parser,
		cfg:     cfg,
		readers: make(map[int]audio.StreamReader, cfg.Channels.NumChannels()),
	}

	s.audioQueue = audio.NewPacketQueue(cfg.MaxSessionPackets)
	s.router = audio.NewRouter()
	s.router.AddRoute(audio.AudioPacketType, s.audioQueue)

	var packetReader audio.PacketReader = s.audioQueue

	targetFrames := int(cfg.Latency.Seconds() * float64(cfg.SampleRate))
	delayer := audio.NewDelayer(packetReader, targetFrames)
	packetReader = delayer

	watchdog := audio.NewWatchdog(packetReader, cfg.Timeout, cfg.Clock)
	packetReader = watchdog
	s.tuners = append(s.tuners, watchdog)

	if cfg.EnableLDPC {
		s.fecQueue = audio.NewPacketQueue(cfg.MaxSessionPackets)
		s.router.AddRoute(audio.FECPacketType, s.fecQueue)
		s.fecDecode = audio.NewFECDecoder(packetReader, s.fecQueue, parser, fec.XORDecoder{}, cfg.FEC)
	} else {
		// Identity FEC stage, still logs the disabled-support warning
		// for a build without FEC support, without taking an FEC queue.
		s.fecDecode = audio.NewFECDecoder(packetReader, noFECQueue{}, parser, nil, audio.FECConfig{Enabled: false})
	}
	packetReader = s.fecDecode

	if cfg.EnableResampling {
		s.scaler = audio.NewScaler(s.audioQueue, cfg.Scaler)
		s.tuners = append(s.tuners, s.scaler)
	}
	scaler := s.scaler

	chanalyzer := audio.NewChanalyzer(packetReader, cfg.Channels)

	for ch := 0; ch < audio.MaxChannels; ch++ {
		if !cfg.Channels.Has(ch) {
			continue
		}
		streamer := audio.NewStreamer(chanalyzer, ch, cfg.SampleRate, cfg.EnableBeep)
		var reader audio.StreamReader = streamer
		if cfg.EnableResampling {
			resampler := audio.NewResampler(streamer, cfg.SampleComposer)
			scaler.AddResampler(resampler)
			reader = resampler
		}
		s.readers[ch] = reader
	}

	return s
}

// noFECQueue is the always-empty PacketReader used when FEC is disabled,
// so the decoder stage never needs a nil check on its fecQueue field.
type noFECQueue struct{}

func (noFECQueue) Read() (audio.Packet, bool) { return nil, false }

// Key returns the session's sender key.
func (s *Session) Key() Key { return s.key }

// ID returns the session's log-correlation identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Store parses the datagram payload into a packet and routes it. It
// returns true if the datagram was parsed and routed.
func (s *Session) Store(payload []byte) bool {
	p, ok := s.parser.Parse(payload)
	if !ok {
		if audio.DebugTrace {
			log.Printf("session[%s]: dropping datagram: can't parse", s.id)
		}
		return false
	}
	s.router.Write(p)
	return true
}

// Update calls Update on every registered tuner, watchdog first, scaler
// next, stopping at the first failure. It returns false if the session
// should now be terminated.
func (s *Session) Update() bool {
	for _, t := range s.tuners {
		if !t.Update() {
			if audio.DebugTrace {
				log.Printf("session[%s]: tuner failed to update, terminating session", s.id)
			}
			return false
		}
	}
	return true
}

// Attach registers this session's per-channel readers on sink under their
// channel index.
func (s *Session) Attach(sink Sink) {
	for ch, r := range s.readers {
		sink.AttachReader(ch, r)
	}
}

// Detach unregisters this session's per-channel readers from sink.
func (s *Session) Detach(sink Sink) {
	for ch, r := range s.readers {
		sink.DetachReader(ch, r)
	}
}

// Sink is the attachment contract a Session's readers register onto; the
// ChannelMuxer is the only production implementation.
type Sink interface {
	AttachReader(channel int, r audio.StreamReader)
	DetachReader(channel int, r audio.StreamReader)
}

// QueueDepth reports the current number of packets buffered in the
// session's audio queue, for metrics export.
func (s *Session) QueueDepth() int { return s.audioQueue.Len() }

// DroppedCount reports how many packets the audio queue has dropped for
// being full over the session's lifetime.
func (s *Session) DroppedCount() uint64 { return s.audioQueue.DroppedCount() }

// Ratio reports the session's current resampling ratio, or 1.0 if
// resampling is disabled.
func (s *Session) Ratio() float64 {
	if s.scaler == nil {
		return 1.0
	}
	return s.scaler.Ratio()
}

// FECStats reports the session's FEC recovered/lost symbol counts.
func (s *Session) FECStats() (recovered, lost uint64) {
	return s.fecDecode.RecoveredCount(), s.fecDecode.LostCount()
}

// String implements fmt.Stringer for log lines.
func (s *Session) String() string {
	return fmt.Sprintf("session[%s %s]", s.id, s.key)
}
