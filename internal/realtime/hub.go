package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightledger/hashlookup/internal/platform/logger"
)

// SSEEvent names the three event kinds a job progress stream emits, mirroring
// domain.JobEventType but kept as a distinct type since the wire event name
// is part of the HTTP contract, not the internal domain model.
type SSEEvent string

const (
	SSEEventJobCreated  SSEEvent = "job_created"
	SSEEventJobProgress SSEEvent = "progress"
	SSEEventJobDone     SSEEvent = "completed"
)

// SSEMessage is one frame written to a subscriber's event stream. Channel is
// the job ID the frame belongs to and is used only for hub-side routing; it
// never appears on the wire. The wire frame is always the literal SSE event
// name "message" carrying a JSON body {"type": Event, "payload": Data}, per
// the documented HTTP contract.
type SSEMessage struct {
	Channel string
	Event   SSEEvent
	Data    any
}

// sseWireFrame is the JSON body of every frame written to a client, keyed by
// the wire contract's field names rather than this package's internal ones.
type sseWireFrame struct {
	Type    SSEEvent `json:"type"`
	Payload any      `json:"payload,omitempty"`
}

// SSEClient is a single HTTP subscriber's outbound frame buffer.
type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}

// SSEHub fans job progress frames out to subscribers. Per §4.5, a job's
// channel holds at most one live subscriber at a time: subscribing while
// another client is already attached evicts the incumbent instead of
// delivering to both.
type SSEHub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]*SSEClient
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger:        log.With("component", "SSEHub"),
		subscriptions: make(map[string]*SSEClient),
	}
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	return &SSEClient{
		ID:       uuid.New(),
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, 16),
		done:     make(chan struct{}),
		Logger:   hub.logger,
	}
}

// AddChannel subscribes client to channel, evicting and closing whatever
// client was previously subscribed to it.
func (hub *SSEHub) AddChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	channel = strings.TrimSpace(channel)
	if channel == "" {
		hub.mu.Unlock()
		return
	}

	incumbent, exists := hub.subscriptions[channel]
	hub.subscriptions[channel] = client
	client.Channels[channel] = true
	hub.mu.Unlock()

	if exists && incumbent != client {
		hub.logger.Debug("evicting incumbent SSE subscriber", "channel", channel, "clientID", incumbent.ID)
		hub.CloseClient(incumbent)
	}
	hub.logger.Debug("SSE client subscribed", "clientID", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveChannel(client *SSEClient, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	delete(client.Channels, channel)
	if cur, ok := hub.subscriptions[channel]; ok && cur == client {
		delete(hub.subscriptions, channel)
	}
	hub.logger.Debug("SSE client unsubscribed from channel", "clientID", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveClient(client *SSEClient) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for ch := range client.Channels {
		if cur, ok := hub.subscriptions[ch]; ok && cur == client {
			delete(hub.subscriptions, ch)
		}
	}
	client.Channels = make(map[string]bool)
}

// Lookup returns the client currently subscribed to channel, if any.
func (hub *SSEHub) Lookup(channel string) (*SSEClient, bool) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	client, ok := hub.subscriptions[channel]
	return client, ok
}

func (hub *SSEHub) Broadcast(msg SSEMessage) {
	hub.mu.RLock()
	client, ok := hub.subscriptions[msg.Channel]
	hub.mu.RUnlock()
	if msg.Channel == "" || !ok {
		return
	}
	select {
	case client.Outbound <- msg:
	default:
		hub.logger.Warn("dropping SSE message; outbound buffer full", "clientID", client.ID)
	}
}

// ServeHTTP drives one client's event stream until the request context ends
// or the client is evicted via CloseClient.
func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *SSEClient) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.RemoveClient(client)
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-client.Outbound:
			if !ok {
				return
			}
			jsonBytes, err := json.Marshal(sseWireFrame{Type: msg.Event, Payload: msg.Data})
			if err != nil {
				hub.logger.Warn("failed to marshal SSE message", "error", err)
				continue
			}
			fmt.Fprint(w, "event: message\n")
			fmt.Fprintf(w, "data: %s\n\n", jsonBytes)
			flusher.Flush()
		}
	}
}

// CloseClient terminates a client's stream and unsubscribes it from every
// channel it held.
func (hub *SSEHub) CloseClient(client *SSEClient) {
	select {
	case <-client.done:
		// already closed
		return
	default:
		close(client.done)
	}
	hub.RemoveClient(client)
	close(client.Outbound)
}
