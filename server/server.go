// Package server implements the tick scheduler that drives the whole
// core: pull datagrams, advance sessions, produce output buffers.
package server

import (
	"log"
	"time"

	"github.com/cwsl/audioreceiver/audio"
	"github.com/cwsl/audioreceiver/metrics"
	"github.com/cwsl/audioreceiver/mux"
	"github.com/cwsl/audioreceiver/session"
)

// DatagramReader is the ingress interface: Read returns a datagram or
// "none". The concrete transport is an external collaborator.
type DatagramReader interface {
	Read() (session.Datagram, bool)
}

// SampleBufferWriter is the egress interface: Write accepts a PCM buffer
// sized samplesPerTick*nChannels, or an empty slice as the end-of-stream
// sentinel.
type SampleBufferWriter interface {
	Write(buf []int16) error
}

// Config bounds one server loop's tick behaviour.
type Config struct {
	Channels        audio.ChannelMask
	SamplesPerTick  int
	MaxSessions     int
	MaxSessionPkts  int
	EnableTiming    bool
	SampleRate      int
	// Composer allocates the per-tick output sample buffer. Required: no
	// global allocator, this is the only place the loop gets scratch PCM
	// storage from.
	Composer audio.SampleComposer
}

// Server holds the datagram source, the session manager, the channel
// muxer and a downstream sample-buffer writer, and drives them all from
// one tick loop.
type Server struct {
	cfg     Config
	reader  DatagramReader
	manager *session.Manager
	muxer   *mux.Muxer
	writer  SampleBufferWriter
	metrics *metrics.Registry

	nChannels int
	stop      chan struct{}
	stopped   chan struct{}
}

// WithMetrics attaches a metrics registry the loop reports queue depth,
// ratio, FEC stats and tick duration into on every tick. Optional: a
// Server with no registry attached skips all instrumentation.
func (s *Server) WithMetrics(reg *metrics.Registry) *Server {
	s.metrics = reg
	return s
}

// New builds a Server. Every non-null/non-zero requirement is validated
// here; violations are programmer errors and panic immediately.
func New(cfg Config, reader DatagramReader, manager *session.Manager, muxer *mux.Muxer, writer SampleBufferWriter) *Server {
	if cfg.Channels == 0 {
		panic("server: channel mask is zero")
	}
	if cfg.SamplesPerTick == 0 {
		panic("server: samples per tick is zero")
	}
	if reader == nil {
		panic("server: datagram reader is nil")
	}
	if manager == nil {
		panic("server: session manager is nil")
	}
	if muxer == nil {
		panic("server: channel muxer is nil")
	}
	if writer == nil {
		panic("server: sample buffer writer is nil")
	}
	if cfg.Composer == nil {
		panic("server: sample buffer composer is nil")
	}

	nChannels := cfg.Channels.NumChannels()

	var finalWriter SampleBufferWriter = writer
	if cfg.EnableTiming {
		finalWriter = NewTimedWriter(writer, cfg.SamplesPerTick, nChannels, cfg.SampleRate)
	}

	return &Server{
		cfg:       cfg,
		reader:    reader,
		manager:   manager,
		muxer:     muxer,
		writer:    finalWriter,
		nChannels: nChannels,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Run loops ticking until Stop is called or an output buffer can't be
// produced. It emits a sentinel empty buffer to the writer on exit either
// way.
func (s *Server) Run() {
	log.Printf("server: starting")

	nDatagrams := s.cfg.MaxSessions * s.cfg.MaxSessionPkts

	for {
		select {
		case <-s.stop:
			log.Printf("server: stop requested")
			goto done
		default:
		}

		if !s.tick(nDatagrams) {
			break
		}
	}

done:
	log.Printf("server: finishing")
	if err := s.writer.Write(nil); err != nil {
		log.Printf("server: error writing end-of-stream sentinel: %v", err)
	}
	close(s.stopped)
}

// tick drains up to nDatagrams datagrams, advances every session, and
// produces one output buffer via cfg.Composer. All ingestion happens
// before any tuner update, and all tuner updates happen before any
// sample is read — this ordering is a correctness requirement: the
// Scaler must see current queue fill before the Resamplers read. A
// composer that can't supply a full-size buffer is fatal to the loop.
func (s *Server) tick(nDatagrams int) bool {
	start := time.Now()

	for i := 0; i < nDatagrams; i++ {
		dgm, ok := s.reader.Read()
		if !ok {
			break
		}
		s.manager.Store(dgm, s.muxer)
	}

	if s.metrics != nil {
		s.manager.UpdateWithMetrics(s.muxer, s.metrics)
		s.manager.ReportMetrics(s.metrics)
	} else {
		s.manager.Update(s.muxer)
	}

	want := s.cfg.SamplesPerTick * s.nChannels
	buf := s.cfg.Composer.Compose(want)
	if len(buf) < want {
		log.Printf("server: output buffer composer exhausted (want %d, got %d), stopping loop", want, len(buf))
		return false
	}
	s.muxer.Read(buf, s.cfg.SamplesPerTick)

	if err := s.writer.Write(buf); err != nil {
		log.Printf("server: can't write sample buffer: %v", err)
		return false
	}

	if s.metrics != nil {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
	return true
}

// Stop requests the loop to stop; observed between ticks only. An
// in-flight tick always completes.
func (s *Server) Stop() {
	close(s.stop)
	<-s.stopped
}
