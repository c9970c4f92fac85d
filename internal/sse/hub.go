package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/eventscout-backend/internal/logger"
)

type StreamEvent string

const (
	StreamEventJobUpdated  StreamEvent = "JobUpdated"
	StreamEventTaskUpdated StreamEvent = "TaskUpdated"
)

// ChannelScrapeJobs receives every job/task snapshot the scheduler persists.
const ChannelScrapeJobs = "scrape_jobs"

type StreamMessage struct {
	Channel string      `json:"channel"`
	Event   StreamEvent `json:"event"`
	Data    any         `json:"data,omitempty"`
}

type StreamClient struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan StreamMessage
	done     chan struct{}
}

type StreamHub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*StreamClient]bool
}

func NewStreamHub(log *logger.Logger) *StreamHub {
	return &StreamHub{
		log:           log.With("component", "StreamHub"),
		subscriptions: make(map[string]map[*StreamClient]bool),
	}
}

func (hub *StreamHub) NewClient() *StreamClient {
	return &StreamClient{
		ID:       uuid.New(),
		Channels: make(map[string]bool),
		Outbound: make(chan StreamMessage, 32),
		done:     make(chan struct{}),
	}
}

func (hub *StreamHub) AddChannel(client *StreamClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	client.Channels[channel] = true

	clients, exists := hub.subscriptions[channel]
	if !exists {
		clients = make(map[*StreamClient]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true
	hub.log.Debug("Stream client subscribed", "clientID", client.ID, "channel", channel)
}

func (hub *StreamHub) RemoveClient(client *StreamClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range client.Channels {
		if subMap, ok := hub.subscriptions[ch]; ok {
			delete(subMap, client)
			if len(subMap) == 0 {
				delete(hub.subscriptions, ch)
			}
		}
	}
	client.Channels = make(map[string]bool)
}

func (hub *StreamHub) Broadcast(msg StreamMessage) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if msg.Channel == "" {
		return
	}
	clientsMap, ok := hub.subscriptions[msg.Channel]
	if !ok {
		return
	}
	for c := range clientsMap {
		select {
		case c.Outbound <- msg:
		default:
			hub.log.Warn("Dropping stream message; outbound buffer full", "clientID", c.ID)
		}
	}
}

func (hub *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *StreamClient) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg := <-client.Outbound:
			jsonBytes, err := json.Marshal(msg)
			if err != nil {
				hub.log.Warn("Failed to marshal stream message", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", string(jsonBytes))
			flusher.Flush()
		}
	}
}

func (hub *StreamHub) CloseClient(client *StreamClient) {
	close(client.done)
	hub.RemoveClient(client)
	close(client.Outbound)
}
