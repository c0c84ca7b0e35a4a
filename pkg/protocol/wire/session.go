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

package wire

import (
	"context"
	"fmt"
	"sync"

	"github.com/carverauto/castbridge/pkg/protocol"
)

// SessionConn is an authenticated device link. A single reader goroutine
// routes pushed now_playing frames to the Updates channel and everything
// else to the pending request, so request/response traffic and the push
// stream share one connection.
type SessionConn struct {
	conn *Conn

	updates chan Playing
	replies chan *Frame

	reqMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenSession dials, authenticates with the stored credential and starts
// the read loop.
func OpenSession(ctx context.Context, address string, port int, service, token string) (*SessionConn, error) {
	conn, err := Dial(ctx, address, port)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrDeviceUnreachable, err)
	}

	resp, err := conn.RoundTrip(ctx, &Frame{Type: TypeAuth, Service: service, Token: token})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", protocol.ErrDeviceUnreachable, err)
	}

	if resp.Type != TypeAuthResult || !resp.OK {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", protocol.ErrAuthRejected, resp.Err)
	}

	s := &SessionConn{
		conn:    conn,
		updates: make(chan Playing, 16),
		replies: make(chan *Frame, 1),
		closed:  make(chan struct{}),
	}

	go s.readLoop()

	return s, nil
}

func (s *SessionConn) readLoop() {
	defer func() {
		s.closeOnce.Do(func() { close(s.closed) })
		close(s.updates)
		_ = s.conn.Close()
	}()

	for {
		f, err := s.conn.Recv()
		if err != nil {
			return
		}

		if f.Type == TypeNowPlaying && f.Playing != nil {
			// Latest wins: a full buffer drops the oldest pushed
			// update rather than blocking the read loop.
			select {
			case s.updates <- *f.Playing:
			default:
				select {
				case <-s.updates:
				default:
				}
				select {
				case s.updates <- *f.Playing:
				default:
				}
			}

			continue
		}

		select {
		case s.replies <- f:
		default:
			// No request pending; unsolicited frame is dropped.
		}
	}
}

// Request performs one request/response exchange. Requests are strictly
// ordered; concurrent callers serialize here.
func (s *SessionConn) Request(ctx context.Context, f *Frame) (*Frame, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	select {
	case <-s.closed:
		return nil, protocol.ErrSessionClosed
	default:
	}

	// Drain a stale reply left behind by an abandoned request.
	select {
	case <-s.replies:
	default:
	}

	if err := s.conn.Send(f); err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrSessionClosed, err)
	}

	select {
	case resp := <-s.replies:
		if resp.Type == TypeError {
			if resp.Code == CodeUnsupported {
				return nil, protocol.ErrUnsupportedCommand
			}

			return nil, fmt.Errorf("device error: %s", resp.Err)
		}

		return resp, nil
	case <-s.closed:
		return nil, protocol.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Updates is the pushed now_playing stream. Closed when the link drops.
func (s *SessionConn) Updates() <-chan Playing {
	return s.updates
}

// Close tears down the link and unblocks pending requests.
func (s *SessionConn) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return s.conn.Close()
}
