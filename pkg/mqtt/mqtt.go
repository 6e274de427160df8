package mqtt

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/mikesmitty/gesture-predictor/pkg/inference"
)

type Client struct {
	client      paho.Client
	clientID    string
	topicPrefix string
	qos         byte
	retained    bool
	every       int
	hassSensors map[string]HassSensor
	mu          sync.Mutex
}

// NewClient prepares a client for broker. Only every Nth result is published.
func NewClient(broker *url.URL, every int) *Client {
	c := newClient(every)

	slog.Info("connecting to mqtt", "url", broker, "clientid", c.clientID, "module", "mqtt")
	c.client = paho.NewClient(&paho.ClientOptions{
		Servers:        []*url.URL{broker},
		ClientID:       c.clientID,
		ConnectRetry:   true,
		ConnectTimeout: 30 * time.Second,
	})
	return c
}

func newClient(every int) *Client {
	hostname, _ := os.Hostname()
	hostname = strings.Split(hostname, ".")[0]
	clientID := hostname
	if clientID == "" {
		sum := md5.Sum([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
		clientID = hex.EncodeToString(sum[:])
		hostname = clientID
	}
	if every < 1 {
		every = 1
	}
	return &Client{
		clientID:    clientID,
		topicPrefix: "gesture-predictor/" + hostname,
		qos:         1,
		every:       every,
		hassSensors: make(map[string]HassSensor),
	}
}

func (c *Client) Connect() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		slog.Error("mqtt connection failed", "error", token.Error(), "module", "mqtt")
		return token.Error()
	}
	return nil
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	if token := c.client.Subscribe(topic, c.qos, handler); token.Wait() && token.Error() != nil {
		slog.Error("mqtt subscription failed", "error", token.Error(), "module", "mqtt")
		return token.Error()
	}
	return nil
}

// GetPublisher registers the gesture sensors and publishes results from
// results until the channel closes.
func (c *Client) GetPublisher(results <-chan inference.Result) func() error {
	gestureSensor := c.RegisterHassSensor(c.NewHassSensor("Gesture", HassSensorGeneric))
	confidenceSensor := c.RegisterHassSensor(c.NewHassSensor("Gesture Confidence", HassSensorConfidence))
	throttle := NewThrottle(c.every)

	return func() error {
		for r := range results {
			if !throttle.Ready() {
				continue
			}
			label, confidence := statePayloads(r)
			slog.Debug("mqtt publishing", "label", label, "confidence", confidence, "module", "mqtt")
			if err := c.HassPublishSensor(gestureSensor, label); err != nil {
				return err
			}
			if err := c.HassPublishSensor(confidenceSensor, confidence); err != nil {
				return err
			}
		}
		return nil
	}
}

func statePayloads(r inference.Result) (string, string) {
	return r.Label, strconv.FormatFloat(r.Probability*100, 'f', 3, 64)
}

func (c *Client) Publish(topic string, msg string) {
	t := c.client.Publish(topic, c.qos, c.retained, msg)
	go func() {
		_ = t.WaitTimeout(5 * time.Second)
		if t.Error() != nil {
			slog.Error("mqtt message publish failed", "error", t.Error(), "topic", topic, "module", "mqtt")
		}
	}()
}

// Throttle lets one in every rate calls through.
type Throttle struct {
	count int
	rate  int
}

func NewThrottle(rate int) *Throttle {
	if rate < 1 {
		rate = 1
	}
	return &Throttle{rate: rate}
}

func (t *Throttle) Ready() bool {
	t.count++
	if t.count%t.rate == 0 {
		t.count = 0
		return true
	}
	return false
}
