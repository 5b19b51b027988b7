package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"visual-search-be/internal/dto"
	"visual-search-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries progress between instances. Every instance
// subscribes and delivers to the owners connected to it.
const ClusterChannel = "pipeline_progress"

type clusterMessage struct {
	OwnerID string          `json:"owner_id"`
	Message json.RawMessage `json:"message"`
}

// Hub tracks live pipeline progress connections per owner.
type Hub struct {
	// Owner id -> connected clients (multi-device)
	clients map[uuid.UUID]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client

	// nil means single instance delivery
	rdb *redis.Client

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rdb:        rdb,
		logger:     log,
	}
}

// Start confirms the Redis subscription, when configured, before returning
// and then serves registrations until ctx ends.
func (h *Hub) Start(ctx context.Context) error {
	if h.rdb != nil {
		pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return fmt.Errorf("subscribe %s: %w", ClusterChannel, err)
		}
		go h.consumeCluster(ctx, pubsub)
	}
	go h.run(ctx)
	return nil
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.OwnerID] == nil {
				h.clients[client.OwnerID] = make(map[*Client]bool)
			}
			h.clients[client.OwnerID][client] = true
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"owner_id": client.OwnerID})
		case client := <-h.unregister:
			h.drop(client)
		}
	}
}

// drop removes the client and closes its queue exactly once.
func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.OwnerID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.OwnerID)
		h.logger.Info("Hub", "Owner has no connections left", map[string]interface{}{"owner_id": client.OwnerID})
	}
}

// Connections reports how many clients an owner has on this instance.
func (h *Hub) Connections(ownerID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID])
}

// Send implements service.ProgressDelivery. With Redis the message goes out
// through the cluster channel only, this instance included, so each
// connection receives it once.
func (h *Hub) Send(ownerID uuid.UUID, progress dto.PipelineProgress) {
	data, err := json.Marshal(progress)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode progress", map[string]interface{}{"error": err.Error()})
		return
	}

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{OwnerID: ownerID.String(), Message: data})
		err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err()
		if err == nil {
			return
		}
		h.logger.Warn("Hub", "Cluster publish failed, delivering locally", map[string]interface{}{"error": err.Error()})
	}
	h.deliver(ownerID, data)
}

func (h *Hub) deliver(ownerID uuid.UUID, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients[ownerID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Hub", "Client send buffer full, disconnecting", map[string]interface{}{"owner_id": ownerID})
		h.drop(client)
	}
}

func (h *Hub) consumeCluster(ctx context.Context, pubsub *redis.PubSub) {
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
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Malformed cluster message", map[string]interface{}{"error": err.Error()})
				continue
			}
			ownerID, err := uuid.Parse(payload.OwnerID)
			if err != nil {
				continue
			}
			h.deliver(ownerID, payload.Message)
		}
	}
}
