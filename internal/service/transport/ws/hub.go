package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"edgeagent/internal/dto"
	"edgeagent/internal/logger"
	"edgeagent/internal/metrics"
	"edgeagent/internal/model"
	"edgeagent/internal/service/transport"
)

const writeTimeout = 5 * time.Second

// Frame is what viewers receive for every message.
type Frame struct {
	Channel    string            `json:"channel"`
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties,omitempty"`
	Payload    json.RawMessage   `json:"payload"`
	CreatedAt  time.Time         `json:"created_at"`
}

type envelope struct {
	channel   string
	msg       *dto.Message
	onConfirm transport.ConfirmFunc
	ctx       uint64
}

// Hub fans telemetry out to connected websocket viewers. It is a transport:
// a send is confirmed once it has been written to every viewer.
type Hub struct {
	clients    map[*websocket.Conn]bool
	outbound   chan envelope
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	closed     bool
	done       chan struct{}
	stopped    chan struct{}
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// NewHub starts the hub loop. queueSize bounds the messages waiting to be broadcast.
func NewHub(queueSize int, logger *logger.Logger, metrics *metrics.Metrics) *Hub {
	if queueSize <= 0 {
		queueSize = 1
	}
	h := &Hub{
		clients:    make(map[*websocket.Conn]bool),
		outbound:   make(chan envelope, queueSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case env := <-h.outbound:
			h.metrics.TransportQueueDepth.Set(float64(len(h.outbound)))
			delivered := h.broadcast(env)
			if env.onConfirm != nil {
				env.onConfirm(env.msg, dto.Result{
					Status: model.StatusOK,
					Detail: fmt.Sprintf("delivered to %d viewers", delivered),
				}, env.ctx)
			}

		case <-h.done:
			h.shutdown()
			return
		}
	}
}

// broadcast writes env to every viewer and drops the ones that fail.
func (h *Hub) broadcast(env envelope) int {
	data, err := json.Marshal(Frame{
		Channel:    env.channel,
		ID:         env.msg.ID,
		Properties: env.msg.Properties,
		Payload:    json.RawMessage(env.msg.Payload),
		CreatedAt:  env.msg.CreatedAt,
	})
	if err != nil {
		h.logger.Error("Error encoding message %s: %v", env.msg.ID, err)
		return 0
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	delivered := 0
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Error("Error sending message: %v", err)
			delete(h.clients, client)
			client.Close()
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) shutdown() {
	for {
		select {
		case env := <-h.outbound:
			if env.onConfirm != nil {
				env.onConfirm(env.msg, dto.Result{Status: model.StatusBecauseDestroy, Detail: "hub closed"}, env.ctx)
			}
		default:
			h.mutex.Lock()
			for client := range h.clients {
				client.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "agent stopping"),
					time.Now().Add(time.Second))
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			h.metrics.TransportQueueDepth.Set(0)
			return
		}
	}
}

// Register adds a viewer. It returns false when the hub is closed.
func (h *Hub) Register(client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes and closes a viewer.
func (h *Hub) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SendAsync queues msg for broadcast without waiting for the viewers.
func (h *Hub) SendAsync(channel string, msg *dto.Message, onConfirm transport.ConfirmFunc, ctx uint64) error {
	env := envelope{channel: channel, msg: msg, onConfirm: onConfirm, ctx: ctx}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.closed {
		return transport.ErrClosed
	}
	select {
	case h.outbound <- env:
		h.metrics.TransportQueueDepth.Set(float64(len(h.outbound)))
		return nil
	default:
		return transport.ErrQueueFull
	}
}

// Close disconnects every viewer and confirms queued sends with BECAUSE_DESTROY.
func (h *Hub) Close() {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		return
	}
	h.closed = true
	h.mutex.Unlock()

	close(h.done)
	<-h.stopped
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
