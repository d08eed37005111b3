package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"edgeagent/internal/config"
	"edgeagent/internal/dto"
	"edgeagent/internal/logger"
	"edgeagent/internal/metrics"
	"edgeagent/internal/model"
	"edgeagent/internal/service/transport"
)

// Publisher is the part of the paho client used for sending.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Options tune the send queue.
type Options struct {
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
	QueueSize   int
	Workers     int
}

type job struct {
	channel   string
	msg       *dto.Message
	onConfirm transport.ConfirmFunc
	ctx       uint64
}

// Client publishes messages to an MQTT broker from a pool of workers, so that
// SendAsync never waits on the network.
type Client struct {
	conn    paho.Client
	pub     Publisher
	opts    Options
	queue   chan job
	mu      sync.RWMutex
	closed  bool
	destroy atomic.Bool
	queued  sync.WaitGroup // accepted sends not yet picked up for publishing
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// Dial connects to the broker named in cfg and returns a ready Client.
func Dial(ctx context.Context, cfg *config.Config, logger *logger.Logger, metrics *metrics.Metrics) (*Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c paho.Client) {
		logger.Info("MQTT connected to %s as %s", cfg.MQTT.Broker, cfg.MQTT.ClientID)
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		logger.Warning("MQTT connection lost, reconnecting: %v", err)
	}

	conn := paho.NewClient(opts)
	logger.Info("Connecting to MQTT broker %s", cfg.MQTT.Broker)

	token := conn.Connect()
	select {
	case <-token.Done():
	case <-time.After(cfg.MessageTimeout):
		conn.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection to %s timed out", cfg.MQTT.Broker)
	case <-ctx.Done():
		conn.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	c := NewClient(conn, Options{
		TopicPrefix: cfg.MQTT.TopicPrefix,
		QoS:         cfg.MQTT.QoS,
		Timeout:     cfg.MessageTimeout,
		QueueSize:   cfg.SendQueueSize,
		Workers:     cfg.SendWorkers,
	}, logger, metrics)
	c.conn = conn
	return c, nil
}

// NewClient starts the send workers on top of pub.
func NewClient(pub Publisher, opts Options, logger *logger.Logger, metrics *metrics.Metrics) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	c := &Client{
		pub:     pub,
		opts:    opts,
		queue:   make(chan job, opts.QueueSize),
		logger:  logger,
		metrics: metrics,
	}
	for i := 0; i < opts.Workers; i++ {
		go c.worker()
	}
	return c
}

// SendAsync queues msg for channel. It returns transport.ErrQueueFull instead of blocking.
func (c *Client) SendAsync(channel string, msg *dto.Message, onConfirm transport.ConfirmFunc, ctx uint64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return transport.ErrClosed
	}

	c.queued.Add(1)
	select {
	case c.queue <- job{channel: channel, msg: msg, onConfirm: onConfirm, ctx: ctx}:
		c.metrics.TransportQueueDepth.Set(float64(len(c.queue)))
		return nil
	default:
		c.queued.Done()
		c.logger.Warning("MQTT send queue full, message %s not sent", msg.ID)
		return transport.ErrQueueFull
	}
}

// Close stops accepting sends, confirms queued ones with BECAUSE_DESTROY and
// disconnects. Publishes already in flight are not awaited; their workers
// confirm them whenever the token settles.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.destroy.Store(true)
	close(c.queue)
	c.mu.Unlock()

	for j := range c.queue {
		c.abandon(j)
	}
	c.queued.Wait()
	c.metrics.TransportQueueDepth.Set(0)
	if c.conn != nil && c.conn.IsConnected() {
		c.conn.Disconnect(250)
		c.logger.Info("MQTT disconnected")
	}
}

func (c *Client) worker() {
	for j := range c.queue {
		c.metrics.TransportQueueDepth.Set(float64(len(c.queue)))
		if c.destroy.Load() {
			c.abandon(j)
			continue
		}
		c.queued.Done()
		j.onConfirm(j.msg, c.publish(j), j.ctx)
	}
}

func (c *Client) abandon(j job) {
	j.onConfirm(j.msg, dto.Result{Status: model.StatusBecauseDestroy, Detail: "client closed"}, j.ctx)
	c.queued.Done()
}

func (c *Client) publish(j job) dto.Result {
	topic := Topic(c.opts.TopicPrefix, j.channel, j.msg)
	token := c.pub.Publish(topic, c.opts.QoS, false, j.msg.Payload)
	if !token.WaitTimeout(c.opts.Timeout) {
		return dto.Result{Status: model.StatusMessageTimeout, Detail: "no acknowledgement within " + c.opts.Timeout.String()}
	}
	if err := token.Error(); err != nil {
		return dto.Result{Status: model.StatusError, Detail: err.Error()}
	}
	c.logger.Debug("Published %s to %s (%d bytes)", j.msg.ID, topic, len(j.msg.Payload))
	return dto.Result{Status: model.StatusOK}
}

// Topic builds the publish topic: the prefix followed by the url-encoded
// property bag carrying the output name, message id, content type and the
// application properties in key order.
func Topic(prefix, channel string, msg *dto.Message) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(prefix, "/"))
	b.WriteByte('/')

	sep := ""
	add := func(key, value string, escapeKey bool) {
		if value == "" {
			return
		}
		b.WriteString(sep)
		if escapeKey {
			key = url.QueryEscape(key)
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
		sep = "&"
	}

	add("$.on", channel, false)
	add("$.mid", msg.ID, false)
	add("$.ct", msg.ContentType, false)
	add("$.ce", msg.ContentEncoding, false)

	keys := make([]string, 0, len(msg.Properties))
	for k := range msg.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, msg.Properties[k], true)
	}
	return b.String()
}
