// Package config loads and validates the receiver's YAML configuration,
// mirroring the nesting and defaulting conventions of the ham-radio web
// server this core was distilled from.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the receiver's YAML configuration file.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Session    SessionConfig    `yaml:"session"`
	Transport  TransportConfig  `yaml:"transport"`
	Egress     EgressConfig     `yaml:"egress"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Health     HealthConfig     `yaml:"health"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AudioConfig describes the mixed output format and per-tick cadence.
type AudioConfig struct {
	Channels       uint32 `yaml:"channels"`        // bitmask of active channel indices
	SampleRate     int    `yaml:"sample_rate"`
	SamplesPerTick int    `yaml:"samples_per_tick"`
	EnableTiming   bool   `yaml:"enable_timing"` // pace output to wall-clock rate (default: false)
	EnableBeep     bool   `yaml:"enable_beep"`   // synthesize a tone instead of silence across unrecoverable gaps
}

// SessionConfig bounds per-sender session behaviour and resource limits.
type SessionConfig struct {
	MaxSessions       int           `yaml:"max_sessions"`
	MaxSessionPackets int           `yaml:"max_session_packets"`
	Latency           time.Duration `yaml:"latency"`
	Timeout           time.Duration `yaml:"timeout"`
	EnableResampling  bool          `yaml:"enable_resampling"`
	EnableLDPC        bool          `yaml:"enable_ldpc"`
	FEC               FECConfig     `yaml:"fec"`
	Scaler            ScalerConfig  `yaml:"scaler"`
}

// FECConfig controls the block-based forward error correction decoder.
type FECConfig struct {
	BlockSize     int `yaml:"block_size"`
	BlockDeadline int `yaml:"block_deadline"` // FEC decoder Read polls before an incomplete block is emitted with gaps
	RepairCount   int `yaml:"repair_count"`   // number of repair symbols the sender produces per block
}

// ScalerConfig tunes the clock-drift PI controller.
type ScalerConfig struct {
	Setpoint        int     `yaml:"setpoint"`
	Kp              float64 `yaml:"kp"`
	Ki              float64 `yaml:"ki"`
	MaxDeviation    float64 `yaml:"max_deviation"`
	MaxRatioStep    float64 `yaml:"max_ratio_step"`
	SaturationTicks int     `yaml:"saturation_ticks"`
}

// TransportConfig names the multicast listening ports and their wire
// protocol.
type TransportConfig struct {
	Listen           []PortConfig `yaml:"listen"`
	Interface        string       `yaml:"interface"`
	SupportedVersion string       `yaml:"supported_version"` // hashicorp/go-version constraint, e.g. ">= 1.0, < 2.0"
}

// PortConfig is one registered listening address.
type PortConfig struct {
	Addr            string `yaml:"addr"`
	ProtocolVersion string `yaml:"protocol_version"`
}

// EgressConfig controls the downstream PCM fan-out.
type EgressConfig struct {
	WebSocket WebSocketEgressConfig `yaml:"websocket"`
}

// WebSocketEgressConfig configures the binary PCM broadcaster.
type WebSocketEgressConfig struct {
	Enabled       bool       `yaml:"enabled"`
	Listen        string     `yaml:"listen"`
	Compress      bool       `yaml:"compress"`       // zstd-compress frames before broadcast
	CompressLevel int        `yaml:"compress_level"` // klauspost/compress zstd level
	Opus          OpusConfig `yaml:"opus"`
}

// OpusConfig holds Opus encoder settings. cmd/receiver does not read it:
// the WebSocket egress sends PCM frames (optionally zstd-compressed) only.
type OpusConfig struct {
	Enabled    bool `yaml:"enabled"`
	Bitrate    int  `yaml:"bitrate"`
	Complexity int  `yaml:"complexity"`
}

// PrometheusConfig controls the metrics scrape endpoint.
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTConfig controls the telemetry publisher.
type MQTTConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"client_id"`
	Topic        string `yaml:"topic"`
	IntervalSecs int    `yaml:"interval_secs"`
}

// HealthConfig controls the periodic gopsutil-backed host stats reporter.
type HealthConfig struct {
	Enabled      bool `yaml:"enabled"`
	IntervalSecs int  `yaml:"interval_secs"`
}

// LoggingConfig mirrors the level/format knobs the web server exposes.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads filename, parses it as YAML, applies defaults and validates
// the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Session.MaxSessionPackets == 0 {
		c.Session.MaxSessionPackets = 64
	}
	if c.Session.FEC.BlockSize == 0 {
		c.Session.FEC.BlockSize = 16
	}
	if c.Session.FEC.BlockDeadline == 0 {
		c.Session.FEC.BlockDeadline = 4
	}
	if c.Session.FEC.RepairCount == 0 {
		c.Session.FEC.RepairCount = 4
	}
	if c.Session.Scaler.Setpoint == 0 {
		c.Session.Scaler.Setpoint = c.Session.MaxSessionPackets / 2
	}
	if c.Session.Scaler.MaxDeviation == 0 {
		c.Session.Scaler.MaxDeviation = 0.05
	}
	if c.Session.Scaler.MaxRatioStep == 0 {
		c.Session.Scaler.MaxRatioStep = 0.001
	}
	if c.Session.Scaler.SaturationTicks == 0 {
		c.Session.Scaler.SaturationTicks = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Egress.WebSocket.CompressLevel == 0 {
		c.Egress.WebSocket.CompressLevel = 3
	}
	if c.MQTT.IntervalSecs == 0 {
		c.MQTT.IntervalSecs = 5
	}
	if c.Health.IntervalSecs == 0 {
		c.Health.IntervalSecs = 30
	}
}

// Validate checks every non-null/non-zero requirement the core depends
// on to construct without panicking.
func (c *Config) Validate() error {
	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels is required")
	}
	if c.Audio.SampleRate < 8000 {
		return fmt.Errorf("audio.sample_rate must be at least 8000")
	}
	if c.Audio.SamplesPerTick <= 0 {
		return fmt.Errorf("audio.samples_per_tick must be positive")
	}
	if c.Session.MaxSessions < 1 {
		return fmt.Errorf("session.max_sessions must be at least 1")
	}
	if c.Session.MaxSessionPackets < 1 {
		return fmt.Errorf("session.max_session_packets must be at least 1")
	}
	if c.Session.Latency <= 0 {
		return fmt.Errorf("session.latency must be positive")
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session.timeout must be positive")
	}
	if c.Session.EnableLDPC {
		if c.Session.FEC.BlockSize < 2 {
			return fmt.Errorf("session.fec.block_size must be at least 2 when enable_ldpc is set")
		}
		if c.Session.FEC.BlockDeadline < 1 {
			return fmt.Errorf("session.fec.block_deadline must be at least 1 when enable_ldpc is set")
		}
		if c.Session.FEC.RepairCount < 1 {
			return fmt.Errorf("session.fec.repair_count must be at least 1 when enable_ldpc is set")
		}
	}
	if len(c.Transport.Listen) == 0 {
		return fmt.Errorf("transport.listen must name at least one port")
	}
	for _, p := range c.Transport.Listen {
		if p.Addr == "" {
			return fmt.Errorf("transport.listen entries require addr")
		}
	}
	if c.Egress.WebSocket.Enabled && c.Egress.WebSocket.Listen == "" {
		return fmt.Errorf("egress.websocket.listen is required when egress.websocket.enabled is set")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt.enabled is set")
	}
	return nil
}
