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

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/protocol"
)

// Dispatch translates an abstract command to the open control adapter.
// A transient command failure is surfaced without closing the session;
// only a lost adapter link degrades it.
func (m *Manager) Dispatch(ctx context.Context, req models.CommandRequest) error {
	m.mu.Lock()
	a := m.current
	var control protocol.CommandSession
	if a != nil {
		control = a.control
	}
	m.mu.Unlock()

	if a == nil {
		return ErrNotConnected
	}

	if control == nil {
		return fmt.Errorf("%w: no control adapter open", protocol.ErrUnsupportedCommand)
	}

	switch req.Command {
	case models.CommandVolumeUp, models.CommandVolumeDown:
		// Volume repeats fast; don't hold the caller for the ack. The
		// dispatch lock is taken before returning so a later command
		// cannot overtake the volume send.
		a.dispatchMu.Lock()

		go func() {
			defer a.dispatchMu.Unlock()

			volCtx, cancel := context.WithTimeout(context.Background(), asyncCommandTimeout)
			defer cancel()

			err := control.Send(volCtx, req)
			if errors.Is(err, protocol.ErrSessionClosed) {
				m.handleAdapterLoss(a, models.ProtocolControl)
			}

			if err != nil {
				m.events.Broadcast(models.NewErrorEvent(fmt.Sprintf("Command %s failed: %v", req.Command, err)))
			}
		}()

		return nil
	case models.CommandPowerToggle:
		return m.powerToggle(ctx, a, control)
	default:
		return m.send(ctx, a, control, req)
	}
}

// send issues one command under the session dispatch lock and reacts to
// a lost adapter link.
func (m *Manager) send(ctx context.Context, a *active, control protocol.CommandSession, req models.CommandRequest) error {
	a.dispatchMu.Lock()
	err := control.Send(ctx, req)
	a.dispatchMu.Unlock()

	if errors.Is(err, protocol.ErrSessionClosed) {
		m.handleAdapterLoss(a, models.ProtocolControl)
	}

	return err
}

// powerToggle mirrors the remote behavior: a powered-on device gets the
// control center overlay (falling back to power_off when the overlay
// command fails), a powered-off device is woken up.
func (m *Manager) powerToggle(ctx context.Context, a *active, control protocol.CommandSession) error {
	state, err := control.PowerState(ctx)
	if err != nil {
		if errors.Is(err, protocol.ErrSessionClosed) {
			m.handleAdapterLoss(a, models.ProtocolControl)
		}

		return fmt.Errorf("power state: %w", err)
	}

	if state == models.PowerStateOn {
		if err := m.send(ctx, a, control, models.CommandRequest{Command: models.CommandControlCenter}); err != nil {
			return m.send(ctx, a, control, models.CommandRequest{Command: models.CommandPowerOff})
		}

		return nil
	}

	return m.send(ctx, a, control, models.CommandRequest{Command: models.CommandPowerOn})
}

// handleAdapterLoss removes a dead adapter session. Losing one protocol
// degrades the session; losing the last one tears it down with a
// disconnect status.
func (m *Manager) handleAdapterLoss(a *active, p models.Protocol) {
	m.mu.Lock()

	if m.current != a {
		m.mu.Unlock()
		return
	}

	sess, had := a.sessions[p]
	if !had {
		m.mu.Unlock()
		return
	}

	delete(a.sessions, p)

	switch p {
	case models.ProtocolControl:
		a.control = nil
	case models.ProtocolMetadata:
		a.metadata = nil
	}

	remaining := len(a.sessions)
	if remaining == 0 {
		m.current = nil
	}
	m.mu.Unlock()

	_ = sess.Close()

	m.logger.Warn().
		Str("device_id", a.deviceID).
		Str("protocol", string(p)).
		Int("remaining", remaining).
		Msg("adapter link lost")

	if remaining == 0 {
		m.events.Broadcast(models.NewErrorEvent(fmt.Sprintf("Lost connection to %s", a.name)))
		m.events.Broadcast(models.NewStatusEvent(fmt.Sprintf("Disconnected from %s", a.name)))

		return
	}

	m.events.Broadcast(models.NewErrorEvent(fmt.Sprintf("Lost %s link to %s, session degraded", p, a.name)))
}
