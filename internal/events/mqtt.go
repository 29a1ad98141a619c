package events

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTPublisher publishes JSON-encoded events to an MQTT broker at QoS 1.
type MQTTPublisher struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	published atomic.Int64
	failed    atomic.Int64
	log       zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Log         zerolog.Logger
}

// Connect dials the broker and returns a publisher that reconnects on its own.
func Connect(opts Options) (*MQTTPublisher, error) {
	p := &MQTTPublisher{
		prefix: strings.Trim(opts.TopicPrefix, "/"),
		log:    opts.Log.With().Str("component", "events").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	p.conn = mqtt.NewClient(clientOpts)
	token := p.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *MQTTPublisher) onConnect(_ mqtt.Client) {
	p.connected.Store(true)
	p.log.Info().Str("prefix", p.prefix).Msg("mqtt connected")
}

func (p *MQTTPublisher) onConnectionLost(_ mqtt.Client, err error) {
	p.connected.Store(false)
	p.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// Topic returns the full topic for an event name.
func (p *MQTTPublisher) Topic(event string) string {
	return Topic(p.prefix, event)
}

// Publish encodes payload and hands it to the client. Delivery failures are
// logged and counted, never returned.
func (p *MQTTPublisher) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	topic := p.Topic(event)
	token := p.conn.Publish(topic, 1, false, data)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			p.failed.Add(1)
			p.log.Warn().Err(err).Str("topic", topic).Msg("event publish failed")
			return
		}
		p.published.Add(1)
		p.log.Debug().Str("topic", topic).Int("payload_size", len(data)).Msg("event published")
	}()
}

func (p *MQTTPublisher) IsConnected() bool {
	return p.connected.Load()
}

// Stats returns the number of delivered and failed publishes.
func (p *MQTTPublisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

func (p *MQTTPublisher) Close() {
	p.log.Info().Msg("disconnecting mqtt publisher")
	p.conn.Disconnect(1000)
}

// Topic joins a prefix and an event name, tolerating stray slashes.
func Topic(prefix, event string) string {
	prefix = strings.Trim(prefix, "/")
	event = strings.Trim(event, "/")
	if prefix == "" {
		return event
	}
	return prefix + "/" + event
}
