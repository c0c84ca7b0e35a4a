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

package hub

import (
	"sync"

	"github.com/carverauto/castbridge/pkg/models"
)

// maxQueue bounds the per-client delivery queue.
const maxQueue = 256

// client is one subscriber with an independent delivery cursor.
type client struct {
	id   string
	conn Conn

	mu     sync.Mutex
	queue  []models.Event
	closed bool

	notify chan struct{}
}

func newClient(id string, conn Conn) *client {
	return &client{
		id:     id,
		conn:   conn,
		notify: make(chan struct{}, 1),
	}
}

// enqueue appends an event to the delivery queue. Returns false when the
// queue overflowed on a reliable event, which means the client must be
// disconnected. High-frequency now_playing events instead drop the
// oldest queued now_playing so the stream degrades to latest-wins
// without reordering.
func (c *client) enqueue(ev models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if len(c.queue) >= maxQueue {
		if ev.Reliable() {
			c.closed = true
			c.signal()

			return false
		}

		if !c.dropOldestNowPlaying() {
			// Queue full of reliable events; shed this update.
			return true
		}
	}

	c.queue = append(c.queue, ev)
	c.signal()

	return true
}

// dropOldestNowPlaying removes the oldest queued now_playing event.
// Caller holds c.mu.
func (c *client) dropOldestNowPlaying() bool {
	for i, queued := range c.queue {
		if queued.Type == models.EventNowPlaying {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return true
		}
	}

	return false
}

func (c *client) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// shutdown marks the client closed and closes the transport, which also
// unblocks a write in flight.
func (c *client) shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.signal()
	_ = c.conn.Close()
}

// writeLoop drains the queue to the transport. Exits when the client is
// closed and drained, or on the first write failure.
func (c *client) writeLoop(h *Hub) {
	for range c.notify {
		for {
			c.mu.Lock()

			if len(c.queue) == 0 {
				done := c.closed
				c.mu.Unlock()

				if done {
					return
				}

				break
			}

			ev := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()

			if err := c.conn.WriteJSON(ev); err != nil {
				h.logger.Debug().Err(err).Str("client_id", c.id).Msg("client write failed")
				h.remove(c)

				return
			}
		}
	}
}
