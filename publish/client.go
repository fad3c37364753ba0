// Package publish pushes the running score and each accepted contact to an
// MQTT broker so club scoreboards and remote operators can follow along.
//
// Topics:
//
//	<prefix>/<CALL>/score - retained JSON score summary
//	<prefix>/<CALL>/qso   - one JSON message per accepted contact
//
// The client reconnects on its own; publishing while disconnected fails fast
// and the caller decides whether to log it.
package publish

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"vcl/qso"
	"vcl/score"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultTopicPrefix roots every topic this package publishes.
const DefaultTopicPrefix = "vcl"

var ErrNotConnected = errors.New("publish: not connected")

// Options configures the broker connection.
type Options struct {
	Broker      string
	Port        int
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	// Timeout bounds connect and each publish.
	Timeout time.Duration
}

// ScoreMessage is the retained score payload.
type ScoreMessage struct {
	Call      string        `json:"call"`
	Grid      string        `json:"grid,omitempty"`
	Summary   score.Summary `json:"summary"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ContactMessage announces one accepted contact.
type ContactMessage struct {
	Station string `json:"station"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Band    string `json:"band"`
	Mode    string `json:"mode"`
	Call    string `json:"call"`
	Grid    string `json:"grid"`
}

// Client wraps a paho MQTT client.
type Client struct {
	opts    Options
	station string
	client  mqtt.Client
}

// NewClient prepares a client publishing on behalf of station (the operator's
// callsign). Connect must be called before publishing.
func NewClient(station string, opts Options) *Client {
	if opts.Port <= 0 {
		opts.Port = 1883
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("vcl-%s-%d", strings.ToLower(qso.NormalizeCall(station)), time.Now().Unix())
	}
	return &Client{opts: opts, station: qso.NormalizeCall(station)}
}

// Connect dials the broker and waits up to Timeout.
func (c *Client) Connect() error {
	if strings.TrimSpace(c.opts.Broker) == "" {
		return errors.New("publish: broker is empty")
	}
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.opts.Broker, c.opts.Port)
	o := mqtt.NewClientOptions()
	o.AddBroker(brokerURL)
	o.SetClientID(c.opts.ClientID)
	if c.opts.Username != "" {
		o.SetUsername(c.opts.Username)
		o.SetPassword(c.opts.Password)
	}
	o.SetKeepAlive(60 * time.Second)
	o.SetPingTimeout(10 * time.Second)
	o.SetConnectTimeout(c.opts.Timeout)
	o.SetAutoReconnect(true)
	o.SetMaxReconnectInterval(time.Minute)
	o.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: connected to %s", brokerURL)
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v (will reconnect)", err)
	})

	c.client = mqtt.NewClient(o)
	token := c.client.Connect()
	if !token.WaitTimeout(c.opts.Timeout) {
		return fmt.Errorf("publish: connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: connect to %s: %w", brokerURL, err)
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	return c != nil && c.client != nil && c.client.IsConnected()
}

// ScoreTopic returns the retained score topic for the station.
func (c *Client) ScoreTopic() string {
	return c.opts.TopicPrefix + "/" + c.station + "/score"
}

// ContactTopic returns the per-contact topic for the station.
func (c *Client) ContactTopic() string {
	return c.opts.TopicPrefix + "/" + c.station + "/qso"
}

// PublishScore sends the summary as a retained message.
func (c *Client) PublishScore(grid string, s score.Summary) error {
	payload, err := ScorePayload(c.station, grid, s, time.Now().UTC())
	if err != nil {
		return err
	}
	return c.publish(c.ScoreTopic(), true, payload)
}

// PublishContact announces one contact.
func (c *Client) PublishContact(contact qso.Contact) error {
	payload, err := ContactPayload(c.station, contact)
	if err != nil {
		return err
	}
	return c.publish(c.ContactTopic(), false, payload)
}

func (c *Client) publish(topic string, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(c.opts.Timeout) {
		return fmt.Errorf("publish: %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, allowing 250ms for in-flight messages.
func (c *Client) Close() {
	if c.IsConnected() {
		c.client.Disconnect(250)
	}
}

// ScorePayload encodes the retained score message.
func ScorePayload(station, grid string, s score.Summary, at time.Time) ([]byte, error) {
	b, err := json.Marshal(ScoreMessage{Call: station, Grid: grid, Summary: s, UpdatedAt: at})
	if err != nil {
		return nil, fmt.Errorf("publish: encode score: %w", err)
	}
	return b, nil
}

// ContactPayload encodes a contact announcement.
func ContactPayload(station string, c qso.Contact) ([]byte, error) {
	b, err := json.Marshal(ContactMessage{
		Station: station,
		Date:    c.Date,
		Time:    c.Time,
		Band:    c.Band,
		Mode:    string(c.Mode),
		Call:    c.Call,
		Grid:    c.Grid,
	})
	if err != nil {
		return nil, fmt.Errorf("publish: encode contact: %w", err)
	}
	return b, nil
}
