// Package realtime streams audit events to connected broker dashboards.
//
// With Redis configured, every instance publishes events to one channel and
// delivers what it receives from that channel, so a dashboard connected to
// any instance sees events produced by all of them.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "broker:audit"

// Hub owns the connected clients. All client bookkeeping happens on the Run
// goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan audit.Event

	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// NewHub returns a hub. rdb may be nil, in which case events only reach
// clients of this instance.
func NewHub(rdb *redis.Client, channel string, logger *zap.Logger) *Hub {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan audit.Event, 256),
		rdb:        rdb,
		channel:    channel,
		logger:     logger,
	}
}

// Publish implements audit.Publisher.
func (h *Hub) Publish(ctx context.Context, ev audit.Event) {
	if h.rdb != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("failed to encode event for fan-out", zap.Error(err))
			return
		}
		if err := h.rdb.Publish(ctx, h.channel, payload).Err(); err != nil {
			h.logger.Warn("redis publish failed, delivering locally", zap.Error(err))
			h.deliver(ev)
		}
		return
	}
	h.deliver(ev)
}

func (h *Hub) deliver(ev audit.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("realtime broadcast buffer full, dropping event",
			zap.String("type", string(ev.Type)), zap.Int64("tenant_id", ev.TenantID))
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	if h.rdb != nil {
		pubsub := h.rdb.Subscribe(ctx, h.channel)
		defer pubsub.Close()
		go h.relay(ctx, pubsub.Channel())
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("dashboard connected", zap.Int64("tenant_id", c.tenantID))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			for c := range h.clients {
				if c.tenantID != ev.TenantID {
					continue
				}
				select {
				case c.send <- payload:
				default:
					// Slow client: drop it rather than stall the hub.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (h *Hub) relay(ctx context.Context, msgs <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev audit.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Warn("dropping undecodable fan-out event", zap.Error(err))
				continue
			}
			h.deliver(ev)
		}
	}
}
