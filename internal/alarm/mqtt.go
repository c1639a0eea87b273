package alarm

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSink publishes each alarm as a retained MQTT message, grounded on the
// teacher's own emitter.MQTTEmitter (References/orion-prototipe), an
// alternate to ExecSink a real deployment would prefer over spawning a
// subprocess per alarm.
type MQTTSink struct {
	Client mqtt.Client
	Topic  string
	QoS    byte

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// NewMQTTSink constructs an MQTTSink publishing to topic over an already
// configured client. Connecting the client is the caller's responsibility.
func NewMQTTSink(client mqtt.Client, topic string) *MQTTSink {
	return &MQTTSink{Client: client, Topic: topic, QoS: 1}
}

func (s *MQTTSink) Send(a Alarm) error {
	if !s.Client.IsConnected() {
		s.mu.Lock()
		s.errors++
		s.mu.Unlock()
		return fmt.Errorf("alarm: mqtt not connected")
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("alarm: marshal: %w", err)
	}

	token := s.Client.Publish(s.Topic, s.QoS, true, payload)
	if !token.WaitTimeout(2 * time.Second) {
		s.mu.Lock()
		s.errors++
		s.mu.Unlock()
		return fmt.Errorf("alarm: publish timeout")
	}
	if err := token.Error(); err != nil {
		s.mu.Lock()
		s.errors++
		s.mu.Unlock()
		return fmt.Errorf("alarm: publish failed: %w", err)
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()
	return nil
}
