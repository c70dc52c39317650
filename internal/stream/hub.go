// Package stream fans out live events to websocket clients by topic. With a
// Redis client every instance receives every event through pub/sub.
package stream

import (
	"context"
	"strings"
	"sync"

	"backend-tripmark/internal/logging"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "tripmark:stream:"
	sendBuffer    = 64
)

var topicPrefixes = []string{"recording:", "itinerary:"}

type Hub struct {
	redis   *redis.Client
	logger  *zap.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

type Client struct {
	Topic string
	Send  chan []byte
}

// NewHub subscribes to Redis before returning. When the subscription cannot
// be confirmed the hub falls back to local delivery only.
func NewHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	h := &Hub{
		logger:  logging.OrNop(logger),
		clients: map[string]map[*Client]struct{}{},
	}
	if redisClient == nil {
		return h
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := redisClient.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Warn("stream subscription failed, delivering locally only", zap.Error(err))
		_ = pubsub.Close()
		cancel()
		return h
	}

	h.redis = redisClient
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.subscribeRedis(ctx, pubsub)
	return h
}

// ValidTopic reports whether topic names something the hub publishes.
func ValidTopic(topic string) bool {
	for _, p := range topicPrefixes {
		if strings.HasPrefix(topic, p) && len(topic) > len(p) {
			return true
		}
	}
	return false
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := topicClients[client]; !ok {
		return
	}
	delete(topicClients, client)
	if len(topicClients) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

// Broadcast publishes payload on topic. With Redis the local clients receive
// it through the subscription like every other instance; a failed publish
// still reaches the local clients.
func (h *Hub) Broadcast(topic string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(topic), payload).Err()
		if err == nil {
			return
		}
		h.logger.Warn("stream publish failed", zap.String("topic", topic), zap.Error(err))
	}
	h.deliver(topic, payload)
}

// Close stops the Redis subscription. Registered clients are left to their
// handlers.
func (h *Hub) Close() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
}

func (h *Hub) subscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
			// slow consumer, drop
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer close(h.done)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			topic, ok := topicFromChannel(msg.Channel)
			if !ok {
				continue
			}
			h.deliver(topic, []byte(msg.Payload))
		}
	}
}

func redisChannel(topic string) string {
	return channelPrefix + topic
}

func topicFromChannel(ch string) (string, bool) {
	topic := strings.TrimPrefix(ch, channelPrefix)
	if topic == ch || topic == "" {
		return "", false
	}
	return topic, true
}
