// MQTTBridge is a receiver dialect that has no analogue in the original
// Python implementation: it publishes canonical per-source state as JSON to
// an MQTT broker, giving monitoring/automation tooling a way to observe the
// routed state without speaking OSC. Grounded on mqtt_publisher.go's
// MQTTPublisher (client construction, TLS loading, publish-with-retain
// pattern), generalised from WSJT-X spot metrics to source state.
package receiver

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tu-studio/osc-kreuz/internal/source"
)

// MQTTBridgeConfig configures the broker connection and topic layout.
type MQTTBridgeConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TopicRoot string // default "oscrouter/sources"
	CAFile    string // optional TLS CA certificate
}

// sourceStatePayload is the JSON document published per source change.
type sourceStatePayload struct {
	Source    int       `json:"source"`
	Position  []float64 `json:"position,omitempty"`
	Renderer  int       `json:"renderer,omitempty"`
	Gain      float64   `json:"gain,omitempty"`
	Send      int       `json:"send,omitempty"`
	Attribute string    `json:"attribute,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Kind      string    `json:"kind"`
	Timestamp int64     `json:"ts"`
}

// MQTTBridge publishes source state to MQTT instead of an OSC endpoint. It
// does not embed Base: it has no per-source coalescing or rate limiting of
// its own, since MQTT QoS/retain semantics already provide the downstream
// a last-value view.
type MQTTBridge struct {
	client    mqtt.Client
	topicRoot string
	posFormat string
}

// NewMQTTBridge connects to the configured broker and returns a ready
// bridge. Connection failures are logged and the bridge silently drops
// publishes thereafter, matching the base engine's failure-isolation
// policy in spec.md §4.4.
func NewMQTTBridge(cfg MQTTBridgeConfig, posFormat string) *MQTTBridge {
	topicRoot := cfg.TopicRoot
	if topicRoot == "" {
		topicRoot = "oscrouter/sources"
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.BrokerURL)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("oscrouter-%d", time.Now().UnixNano())
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.CAFile != "" {
		if tlsCfg, err := loadTLSConfig(cfg.CAFile); err == nil {
			opts.SetTLSConfig(tlsCfg)
		} else {
			log.Printf("mqttbridge: could not load CA file %q: %v", cfg.CAFile, err)
		}
	}
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("mqttbridge: connect to %s failed: %v", cfg.BrokerURL, token.Error())
	}

	return &MQTTBridge{client: client, topicRoot: topicRoot, posFormat: posFormat}
}

func loadTLSConfig(caFile string) (*tls.Config, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("mqttbridge: no certificates found in %q", caFile)
	}
	return &tls.Config{RootCAs: pool}, nil
}

func (m *MQTTBridge) publish(topic string, payload sourceStatePayload) {
	if m.client == nil || !m.client.IsConnected() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	token := m.client.Publish(fmt.Sprintf("%s/%s", m.topicRoot, topic), 0, true, data)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("mqttbridge: publish to %s failed: %v", topic, err)
		}
	}()
}

func (m *MQTTBridge) OnPositionChanged(srcIdx int, src *source.Source) {
	pos, err := src.GetPosition(m.posFormat)
	if err != nil {
		return
	}
	m.publish(fmt.Sprintf("%d/position", srcIdx+1), sourceStatePayload{
		Source: srcIdx + 1, Position: pos, Kind: "position", Timestamp: time.Now().Unix(),
	})
}

func (m *MQTTBridge) OnGainChanged(srcIdx, rendererIdx int, src *source.Source) {
	value, err := src.GetGain(rendererIdx)
	if err != nil {
		return
	}
	m.publish(fmt.Sprintf("%d/gain/%d", srcIdx+1, rendererIdx), sourceStatePayload{
		Source: srcIdx + 1, Renderer: rendererIdx, Gain: value, Kind: "gain", Timestamp: time.Now().Unix(),
	})
}

func (m *MQTTBridge) OnDirectSendChanged(srcIdx, sendIdx int, src *source.Source) {
	value, err := src.GetDirectSend(sendIdx)
	if err != nil {
		return
	}
	m.publish(fmt.Sprintf("%d/direct/%d", srcIdx+1, sendIdx), sourceStatePayload{
		Source: srcIdx + 1, Send: sendIdx, Gain: value, Kind: "direct_send", Timestamp: time.Now().Unix(),
	})
}

func (m *MQTTBridge) OnAttributeChanged(srcIdx int, attrName string, src *source.Source) {
	value := src.GetAttribute(attrName)
	m.publish(fmt.Sprintf("%d/attribute/%s", srcIdx+1, attrName), sourceStatePayload{
		Source: srcIdx + 1, Attribute: attrName, Value: value, Kind: "attribute", Timestamp: time.Now().Unix(),
	})
}
