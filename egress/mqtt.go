package egress

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MetricPayload is the JSON telemetry message published per reporting
// interval, the same shape as the source server's own MQTT metrics
// publisher.
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
	Labels    map[string]string  `json:"labels,omitempty"`
}

// MQTTTelemetryWriter samples the mixed PCM buffer's RMS level every N
// ticks and publishes a small JSON summary, rather than carrying PCM
// itself (a poor fit for MQTT's delivery model and the broker's message
// size expectations).
type MQTTTelemetryWriter struct {
	client   mqtt.Client
	topic    string
	interval int
	tick     int
}

// NewMQTTTelemetryWriter connects to broker and returns a writer that
// publishes to topic every intervalTicks ticks.
func NewMQTTTelemetryWriter(broker, clientID, topic string, intervalTicks int) (*MQTTTelemetryWriter, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Println("egress: mqtt connected to broker")
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Printf("egress: mqtt connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("egress: mqtt connect: %w", token.Error())
	}

	if intervalTicks <= 0 {
		intervalTicks = 1
	}

	return &MQTTTelemetryWriter{
		client:   client,
		topic:    topic,
		interval: intervalTicks,
	}, nil
}

// Write samples buf's RMS level and publishes telemetry every interval
// ticks. An empty buf (the end-of-stream sentinel) is ignored.
func (w *MQTTTelemetryWriter) Write(buf []int16) error {
	w.tick++
	if len(buf) == 0 || w.tick%w.interval != 0 {
		return nil
	}

	payload := MetricPayload{
		Timestamp: time.Now().Unix(),
		Metrics: map[string]float64{
			"rms": rms(buf),
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("egress: marshal telemetry: %w", err)
	}

	token := w.client.Publish(w.topic, 0, false, data)
	token.Wait()
	return token.Error()
}

func rms(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

// Close disconnects the MQTT client.
func (w *MQTTTelemetryWriter) Close() {
	w.client.Disconnect(250)
}
