// Command receiver runs the real-time audio receiver core: it ingests
// multicast RTP/PCM datagrams from many senders, reconstructs and mixes
// their streams, and serves the result over WebSocket and MQTT.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/cwsl/audioreceiver/audio"
	"github.com/cwsl/audioreceiver/config"
	"github.com/cwsl/audioreceiver/egress"
	"github.com/cwsl/audioreceiver/health"
	"github.com/cwsl/audioreceiver/metrics"
	"github.com/cwsl/audioreceiver/mux"
	"github.com/cwsl/audioreceiver/server"
	"github.com/cwsl/audioreceiver/session"
	"github.com/cwsl/audioreceiver/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	ifaceName := flag.String("iface", "", "Network interface to join multicast groups on (default: system choice)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var iface *net.Interface
	if *ifaceName != "" {
		iface, err = net.InterfaceByName(*ifaceName)
		if err != nil {
			log.Fatalf("Failed to resolve interface %s: %v", *ifaceName, err)
		}
	}

	mask := audio.ChannelMask(cfg.Audio.Channels)

	sessCfg := session.Config{
		Channels:          mask,
		SampleRate:        cfg.Audio.SampleRate,
		MaxSessionPackets: cfg.Session.MaxSessionPackets,
		Latency:           cfg.Session.Latency,
		Timeout:           cfg.Session.Timeout,
		EnableResampling:  cfg.Session.EnableResampling,
		EnableLDPC:        cfg.Session.EnableLDPC,
		EnableBeep:        cfg.Audio.EnableBeep,
		FEC: audio.FECConfig{
			Enabled:       cfg.Session.EnableLDPC,
			BlockSize:     cfg.Session.FEC.BlockSize,
			BlockDeadline: cfg.Session.FEC.BlockDeadline,
			RepairCount:   cfg.Session.FEC.RepairCount,
		},
		Scaler: audio.ScalerConfig{
			Setpoint:        cfg.Session.Scaler.Setpoint,
			Kp:              cfg.Session.Scaler.Kp,
			Ki:              cfg.Session.Scaler.Ki,
			MaxDeviation:    cfg.Session.Scaler.MaxDeviation,
			MaxRatioStep:    cfg.Session.Scaler.MaxRatioStep,
			SaturationTicks: cfg.Session.Scaler.SaturationTicks,
		},
		SampleComposer: audio.SliceSampleComposer{},
		Clock:          time.Now,
	}

	pool := session.NewDefaultPool(sessCfg)

	var supported *version.Constraints
	if cfg.Transport.SupportedVersion != "" {
		c, err := version.NewConstraint(cfg.Transport.SupportedVersion)
		if err != nil {
			log.Fatalf("Invalid transport.supported_version constraint: %v", err)
		}
		supported = &c
	}

	manager := session.NewManager(session.ManagerConfig{
		MaxSessions:      cfg.Session.MaxSessions,
		SupportedVersion: supported,
	}, pool, sessCfg)

	var addrs []string
	for _, p := range cfg.Transport.Listen {
		parser := transport.NewRTPParser(mask, cfg.Audio.SampleRate)
		var protoVersion *version.Version
		if p.ProtocolVersion != "" {
			v, err := version.NewVersion(p.ProtocolVersion)
			if err != nil {
				log.Fatalf("Invalid protocol_version %q for port %s: %v", p.ProtocolVersion, p.Addr, err)
			}
			protoVersion = v
		}
		manager.AddPort(p.Addr, parser, protoVersion)
		addrs = append(addrs, p.Addr)
	}

	reader, err := transport.NewMulticastReader(addrs, iface)
	if err != nil {
		log.Fatalf("Failed to start multicast ingress: %v", err)
	}

	muxer := mux.New(mask, cfg.Audio.SamplesPerTick)

	var writer server.SampleBufferWriter
	if cfg.Egress.WebSocket.Enabled {
		encoder := egress.NewPCMBinaryEncoder(cfg.Egress.WebSocket.Compress, cfg.Egress.WebSocket.CompressLevel)
		wsWriter := egress.NewWebSocketWriter(encoder, cfg.Audio.SampleRate, mask.NumChannels(), cfg.Audio.SamplesPerTick)
		mux2 := http.NewServeMux()
		mux2.Handle("/stream", wsWriter)
		go func() {
			log.Printf("egress: websocket listening on %s", cfg.Egress.WebSocket.Listen)
			if err := http.ListenAndServe(cfg.Egress.WebSocket.Listen, mux2); err != nil {
				log.Printf("egress: websocket server stopped: %v", err)
			}
		}()
		writer = wsWriter
	} else {
		writer = discardWriter{}
	}

	if cfg.MQTT.Enabled {
		intervalTicks := cfg.MQTT.IntervalSecs * cfg.Audio.SampleRate / cfg.Audio.SamplesPerTick
		mqttWriter, err := egress.NewMQTTTelemetryWriter(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic, intervalTicks)
		if err != nil {
			log.Fatalf("Failed to connect MQTT telemetry writer: %v", err)
		}
		defer mqttWriter.Close()
		writer = multiWriter{writer, mqttWriter}
	}

	var reg *metrics.Registry
	if cfg.Prometheus.Enabled {
		reg = metrics.NewRegistry()
		go func() {
			mux3 := http.NewServeMux()
			mux3.Handle("/metrics", reg.Handler())
			log.Printf("metrics: prometheus listening on %s", cfg.Prometheus.Listen)
			if err := http.ListenAndServe(cfg.Prometheus.Listen, mux3); err != nil {
				log.Printf("metrics: server stopped: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Health.Enabled {
		reporter := health.NewReporter(time.Duration(cfg.Health.IntervalSecs) * time.Second)
		go reporter.Run(ctx)
	}

	srv := server.New(server.Config{
		Channels:       mask,
		SamplesPerTick: cfg.Audio.SamplesPerTick,
		MaxSessions:    cfg.Session.MaxSessions,
		MaxSessionPkts: cfg.Session.MaxSessionPackets,
		EnableTiming:   cfg.Audio.EnableTiming,
		SampleRate:     cfg.Audio.SampleRate,
		Composer:       audio.SliceSampleComposer{},
	}, reader, manager, muxer, writer)
	if reg != nil {
		srv = srv.WithMetrics(reg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("receiver: shutdown signal received")
		srv.Stop()
		cancel()
		reader.Close()
	}()

	srv.Run()
}

// discardWriter is used when no WebSocket egress is configured; the core
// still needs a SampleBufferWriter to drive its tick loop against.
type discardWriter struct{}

func (discardWriter) Write(buf []int16) error { return nil }

// multiWriter fans a single Write call out to two downstream writers, the
// PCM-carrying one and the MQTT telemetry one.
type multiWriter struct {
	a, b server.SampleBufferWriter
}

func (m multiWriter) Write(buf []int16) error {
	if err := m.a.Write(buf); err != nil {
		return err
	}
	return m.b.Write(buf)
}
