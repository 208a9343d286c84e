// Package events forwards scan session events to an MQTT broker.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nasa-jpl/goscan/device"
	"github.com/nasa-jpl/goscan/scan"
)

// ErrTimeout is returned when the broker does not acknowledge in time
var ErrTimeout = errors.New("mqtt: timed out")

// Config describes the broker connection
type Config struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.  Empty disables publishing.
	Broker string `koanf:"Broker" yaml:"Broker"`

	// ClientID identifies this process to the broker
	ClientID string `koanf:"ClientID" yaml:"ClientID"`

	Username string `koanf:"Username" yaml:"Username"`
	Password string `koanf:"Password" yaml:"Password"`

	// Topic is the prefix of every topic; the event type is appended
	Topic string `koanf:"Topic" yaml:"Topic"`

	// QoS is the MQTT quality of service level, 0 to 2
	QoS byte `koanf:"QoS" yaml:"QoS"`

	// Timeout bounds connecting and waiting for acknowledgement
	Timeout time.Duration `koanf:"Timeout" yaml:"Timeout"`
}

// publisher is the part of mqtt.Client a Publisher uses
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher implements scan.Publisher over MQTT.  Progress events are
// sent without waiting for the broker; the rest wait up to Timeout.
type MQTTPublisher struct {
	client  publisher
	topic   string
	qos     byte
	timeout time.Duration
	log     *slog.Logger
}

// Dial connects to the broker in c
func Dial(c Config) (*MQTTPublisher, mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.Broker)
	opts.SetClientID(c.ClientID)
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	log := device.Logger("events")
	opts.OnConnect = func(mqtt.Client) {
		log.Info("connected to broker", "broker", c.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("lost broker connection", "broker", c.Broker, "err", err)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if err := wait(tok, c.Timeout); err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", c.Broker, err)
	}
	return New(client, c.Topic, c.QoS, c.Timeout), client, nil
}

// New wraps a connected client
func New(client publisher, topic string, qos byte, timeout time.Duration) *MQTTPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{
		client:  client,
		topic:   strings.TrimSuffix(topic, "/"),
		qos:     qos,
		timeout: timeout,
		log:     device.Logger("events"),
	}
}

// Topic returns the topic an event is published on
func (p *MQTTPublisher) Topic(ev scan.Event) string {
	if p.topic == "" {
		return ev.Type
	}
	return p.topic + "/" + ev.Type
}

// Publish implements scan.Publisher
func (p *MQTTPublisher) Publish(ev scan.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	tok := p.client.Publish(p.Topic(ev), p.qos, ev.Type == scan.EventFinished, payload)
	if ev.Type == scan.EventProgress {
		return nil
	}
	return wait(tok, p.timeout)
}

func wait(tok mqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if !tok.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return tok.Error()
}
