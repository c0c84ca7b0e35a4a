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

// Package session owns the single active connected-device session: which
// adapter sessions are open, command translation and the now-playing
// stream.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/protocol"
	"github.com/carverauto/castbridge/pkg/registry"
	"github.com/carverauto/castbridge/pkg/store"
)

const (
	initialFetchTimeout = 5 * time.Second
	artworkTimeout      = 3 * time.Second
	asyncCommandTimeout = 10 * time.Second
)

// Events is the broadcast surface the manager emits into.
type Events interface {
	Broadcast(ev models.Event)
}

// active is the live session state. Adapter sessions are owned
// exclusively; they are never shared across sessions.
type active struct {
	deviceID string
	name     string

	sessions map[models.Protocol]protocol.Session
	control  protocol.CommandSession
	metadata protocol.MetadataSession

	// dispatchMu keeps command dispatch strictly ordered even when
	// volume commands run without waiting for the ack.
	dispatchMu sync.Mutex

	stateMu       sync.Mutex
	nowPlaying    *models.NowPlaying
	apps          []models.AppInfo
	lastArtworkID string
	lastTitle     string
	artwork       string

	// pushSeen flips on the first pushed update; a slower initial pull
	// arriving after that would rewind the stream and is dropped.
	pushSeen bool
}

// Manager enforces the single-active-session policy.
type Manager struct {
	adapters map[models.Protocol]protocol.Adapter
	store    store.Store
	registry *registry.DeviceRegistry
	events   Events
	logger   logger.Logger

	mu      sync.Mutex
	current *active
}

// NewManager creates the session manager.
func NewManager(adapters []protocol.Adapter, st store.Store, reg *registry.DeviceRegistry, events Events, log logger.Logger) *Manager {
	byProto := make(map[models.Protocol]protocol.Adapter, len(adapters))
	for _, a := range adapters {
		byProto[a.Protocol()] = a
	}

	return &Manager{
		adapters: byProto,
		store:    st,
		registry: reg,
		events:   events,
		logger:   log,
	}
}

// Connect opens an adapter session for every paired, reachable protocol
// of the device and starts metadata streaming when a metadata session is
// among them. Connecting to the already-connected device is a no-op.
func (m *Manager) Connect(ctx context.Context, deviceID string) error {
	dev, ok := m.registry.Get(deviceID)
	if !ok {
		return ErrUnknownDevice
	}

	if !dev.Paired() {
		return fmt.Errorf("%w: %s", ErrNotPaired, dev.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.deviceID == deviceID {
			return nil
		}

		return fmt.Errorf("%w: %s", ErrAlreadyConnected, m.current.name)
	}

	if dev.Online != models.OnlineTrue {
		return fmt.Errorf("%w: %s", ErrUnreachable, dev.Name)
	}

	creds, err := m.store.Credentials(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	a := &active{
		deviceID: deviceID,
		name:     dev.Name,
		sessions: make(map[models.Protocol]protocol.Session),
	}

	for _, p := range dev.PairedProtocols() {
		credential, hasCred := creds[p]
		adapter, hasAdapter := m.adapters[p]
		port, hasPort := dev.Ports[p]

		if !hasCred || !hasAdapter || !hasPort {
			continue
		}

		target := protocol.Target{DeviceID: deviceID, Name: dev.Name, Address: dev.Address, Port: port}

		sess, openErr := adapter.Open(ctx, target, credential)
		if openErr != nil {
			// Partial session degradation is acceptable; a protocol
			// that cannot open is skipped, not fatal.
			m.logger.Warn().Err(openErr).
				Str("device_id", deviceID).
				Str("protocol", string(p)).
				Msg("adapter session failed to open")

			continue
		}

		a.sessions[p] = sess

		switch s := sess.(type) {
		case protocol.CommandSession:
			a.control = s
		case protocol.MetadataSession:
			a.metadata = s
		}
	}

	if len(a.sessions) == 0 {
		return fmt.Errorf("%w: no adapter session could be opened", ErrUnreachable)
	}

	m.current = a

	m.logger.Info().
		Str("device_id", deviceID).
		Int("adapters", len(a.sessions)).
		Msg("session connected")

	m.events.Broadcast(models.NewStatusEvent(fmt.Sprintf("Connected to %s", dev.Name)))

	if a.metadata != nil {
		go m.streamMetadata(a, a.metadata)
		go m.initialFetch(a, a.metadata)
	}

	return nil
}

// Disconnect closes every adapter session of the active device.
// Idempotent: with no active session it is a no-op. Close failures on
// one adapter never abandon the remainder.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	a := m.current
	m.current = nil
	m.mu.Unlock()

	if a == nil {
		return
	}

	m.closeAll(a)
	m.events.Broadcast(models.NewStatusEvent(fmt.Sprintf("Disconnected from %s", a.name)))
}

// HandleOffline force-closes the session when the reconciler marks its
// device offline.
func (m *Manager) HandleOffline(deviceID string) {
	m.mu.Lock()

	if m.current == nil || m.current.deviceID != deviceID {
		m.mu.Unlock()
		return
	}

	a := m.current
	m.current = nil
	m.mu.Unlock()

	m.closeAll(a)

	m.logger.Info().Str("device_id", deviceID).Msg("session closed, device went offline")
	m.events.Broadcast(models.NewStatusEvent(fmt.Sprintf("Disconnected from %s (device offline)", a.name)))
}

// ActiveDevice reports the connected device, if any.
func (m *Manager) ActiveDevice() (deviceID, name string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return "", "", false
	}

	return m.current.deviceID, m.current.name, true
}

// NowPlayingSnapshot returns the cached playback state of the active
// session.
func (m *Manager) NowPlayingSnapshot() (models.NowPlaying, bool) {
	m.mu.Lock()
	a := m.current
	m.mu.Unlock()

	if a == nil {
		return models.NowPlaying{}, false
	}

	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if a.nowPlaying == nil {
		return models.NowPlaying{}, false
	}

	return *a.nowPlaying, true
}

func (m *Manager) activeSession() *active {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

// closeAll best-effort closes every adapter session; a failing close
// never stops the rest.
func (m *Manager) closeAll(a *active) {
	for p, sess := range a.sessions {
		if err := sess.Close(); err != nil {
			m.logger.Warn().Err(err).Str("protocol", string(p)).Msg("adapter close failed")
		}
	}
}
