package telemetry

import (
	"fmt"
	"math/rand"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTWriter publishes every written record to an MQTT topic. It implements
// io.Writer so it can be combined with other sinks via io.MultiWriter.
// Publishes are QoS 0 and not awaited, matching the fire-and-forget telemetry
// contract; a slow broker never stalls the conditioning loop.
type MQTTWriter struct {
	client mqtt.Client
	topic  string
}

// NewMQTTWriter connects to the broker (e.g. "tcp://localhost:1883") and
// returns a writer publishing to the given topic.
func NewMQTTWriter(broker, topic string) (*MQTTWriter, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("goemg-%d", rand.Int31()))

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}

	return &MQTTWriter{client: client, topic: topic}, nil
}

// Write publishes one record. The payload is copied because paho hands it to
// a background goroutine.
func (w *MQTTWriter) Write(p []byte) (int, error) {
	payload := make([]byte, len(p))
	copy(payload, p)
	w.client.Publish(w.topic, 0, false, payload)
	return len(p), nil
}

// Close disconnects from the broker.
func (w *MQTTWriter) Close() error {
	w.client.Disconnect(250)
	return nil
}
