/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package hub fans engine events out to every subscribed client
// connection. Delivery is broadcast-only; each client has its own
// bounded queue so a slow subscriber never blocks the rest.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
)

// Conn is the transport surface the hub writes to. *websocket.Conn
// satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// SnapshotFunc produces the authoritative state events replayed to a
// client the moment it subscribes, so a reconnecting client is
// consistent without waiting for the next scan cycle.
type SnapshotFunc func() []models.Event

// Hub is the event distribution layer.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*client
	snapshot SnapshotFunc
	logger   logger.Logger
}

// New creates a hub. The snapshot function is wired in afterwards since
// the engine that produces snapshots is constructed around the hub.
func New(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		logger:  log,
	}
}

// SetSnapshot installs the state replay source.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshot = fn
}

// Subscribe registers a connection and immediately replays current
// authoritative state into its queue. Returns the client id.
func (h *Hub) Subscribe(conn Conn) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := newClient(uuid.NewString(), conn)
	h.clients[c.id] = c

	if h.snapshot != nil {
		for _, ev := range h.snapshot() {
			c.enqueue(ev)
		}
	}

	go c.writeLoop(h)

	h.logger.Info().Str("client_id", c.id).Int("clients", len(h.clients)).Msg("client subscribed")

	return c.id
}

// Unsubscribe removes a client and closes its connection.
func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	delete(h.clients, clientID)
	h.mu.Unlock()

	if ok {
		c.shutdown()
	}
}

// Broadcast delivers an event to every subscriber. The hub lock is held
// while enqueuing so every client sees events in the same order they
// were produced. A client whose queue overflows on a reliable event is
// dropped.
func (h *Hub) Broadcast(ev models.Event) {
	h.mu.Lock()

	var overflowed []*client

	for _, c := range h.clients {
		if !c.enqueue(ev) {
			overflowed = append(overflowed, c)
			delete(h.clients, c.id)
		}
	}

	h.mu.Unlock()

	for _, c := range overflowed {
		h.logger.Warn().Str("client_id", c.id).Msg("dropping slow client")
		c.shutdown()
	}
}

// Send delivers an event to a single subscriber, used for direct
// replies to client requests. Delivery goes through the client queue so
// replies never interleave with a broadcast mid-write.
func (h *Hub) Send(clientID string, ev models.Event) {
	h.mu.Lock()

	c, ok := h.clients[clientID]

	dropped := false
	if ok && !c.enqueue(ev) {
		delete(h.clients, clientID)

		dropped = true
	}
	h.mu.Unlock()

	if dropped {
		h.logger.Warn().Str("client_id", clientID).Msg("dropping slow client")
		c.shutdown()
	}
}

// ClientCount reports the number of live subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))

	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
}

// remove is called from a client write loop after a transport failure.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.shutdown()
}
