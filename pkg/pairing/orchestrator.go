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

// Package pairing drives the chained multi-protocol pairing state
// machine. One attempt may be active per device; protocols pair in
// priority order and a wrong PIN at any step never forces re-entering
// PINs for steps already completed.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/protocol"
	"github.com/carverauto/castbridge/pkg/registry"
	"github.com/carverauto/castbridge/pkg/store"
)

// State is the pairing attempt state.
type State string

const (
	StateRequesting  State = "requesting"
	StateAwaitingPin State = "awaiting_pin"
	StateVerifying   State = "verifying"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// Events is the broadcast surface the orchestrator emits into.
type Events interface {
	Broadcast(ev models.Event)
}

// attempt is one transient chained pairing run for a device.
type attempt struct {
	deviceID string
	name     string
	address  string
	ports    map[models.Protocol]int

	queue   []models.Protocol
	current models.Protocol
	state   State
	lastErr error

	txn protocol.PairingTransaction
}

// Orchestrator owns all active pairing attempts. The mutex guards the
// attempts map and attempt state transitions; handshake I/O happens
// outside the lock so attempts for different devices proceed
// concurrently.
type Orchestrator struct {
	adapters map[models.Protocol]protocol.Adapter
	store    store.Store
	registry *registry.DeviceRegistry
	events   Events
	logger   logger.Logger

	mu       sync.Mutex
	attempts map[string]*attempt
}

// NewOrchestrator creates the pairing orchestrator.
func NewOrchestrator(adapters []protocol.Adapter, st store.Store, reg *registry.DeviceRegistry, events Events, log logger.Logger) *Orchestrator {
	byProto := make(map[models.Protocol]protocol.Adapter, len(adapters))
	for _, a := range adapters {
		byProto[a.Protocol()] = a
	}

	return &Orchestrator{
		adapters: byProto,
		store:    st,
		registry: reg,
		events:   events,
		logger:   log,
		attempts: make(map[string]*attempt),
	}
}

// Start begins a chained pairing attempt for a device. With only set,
// the queue contains exactly that protocol; otherwise every advertised
// unpaired protocol queues in priority order. Exactly one attempt may be
// active per device.
func (o *Orchestrator) Start(ctx context.Context, dev *models.Device, only *models.Protocol) error {
	var queue []models.Protocol

	if only != nil {
		if _, advertised := dev.Protocols[*only]; !advertised {
			return fmt.Errorf("%w: %s", ErrProtocolUnavailable, *only)
		}

		queue = []models.Protocol{*only}
	} else {
		queue = dev.UnpairedProtocols()
	}

	if len(queue) == 0 {
		return ErrNothingToPair
	}

	for _, p := range queue {
		if _, ok := o.adapters[p]; !ok {
			return fmt.Errorf("%w: %s", ErrAdapterMissing, p)
		}
	}

	o.mu.Lock()

	if _, active := o.attempts[dev.ID]; active {
		o.mu.Unlock()
		return ErrAttemptActive
	}

	a := &attempt{
		deviceID: dev.ID,
		name:     dev.Name,
		address:  dev.Address,
		ports:    dev.Ports,
		queue:    queue,
		state:    StateRequesting,
	}
	o.attempts[dev.ID] = a
	o.mu.Unlock()

	o.logger.Info().
		Str("device_id", dev.ID).
		Interface("queue", queue).
		Msg("pairing attempt started")

	return o.advance(ctx, a)
}

// SubmitPIN hands the PIN to the adapter for verification. A rejected
// PIN returns the attempt to awaiting_pin so a corrected PIN can retry
// the current step without restarting the chain.
func (o *Orchestrator) SubmitPIN(ctx context.Context, deviceID, pin string) error {
	o.mu.Lock()

	a, ok := o.attempts[deviceID]
	if !ok {
		o.mu.Unlock()
		return ErrNoAttempt
	}

	if a.state != StateAwaitingPin {
		o.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrNotAwaitingPin, a.state)
	}

	a.state = StateVerifying
	o.mu.Unlock()

	credential, err := a.txn.Finish(ctx, pin)
	if err != nil {
		if errors.Is(err, protocol.ErrPinRejected) {
			o.mu.Lock()
			if o.attempts[deviceID] != a {
				o.mu.Unlock()
				return ErrAttemptCancelled
			}

			a.state = StateAwaitingPin
			a.lastErr = err
			o.mu.Unlock()

			o.events.Broadcast(models.Event{
				Type:     models.EventPairingStatus,
				Status:   models.PairingStageFailed,
				Protocol: a.current,
				Message:  fmt.Sprintf("Wrong PIN for %s pairing, try again", a.current),
			})

			return err
		}

		o.fail(a, err)

		return err
	}

	if err := o.completeStep(ctx, a, credential); err != nil {
		return err
	}

	return o.advance(ctx, a)
}

// Cancel aborts the attempt, terminating any in-flight handshake. No
// further events are emitted for the attempt; protocols already paired
// in the chain stay paired.
func (o *Orchestrator) Cancel(deviceID string) error {
	o.mu.Lock()

	a, ok := o.attempts[deviceID]
	if !ok {
		o.mu.Unlock()
		return ErrNoAttempt
	}

	delete(o.attempts, deviceID)
	o.mu.Unlock()

	if a.txn != nil {
		_ = a.txn.Close()
	}

	o.logger.Info().Str("device_id", deviceID).Msg("pairing attempt cancelled")

	return nil
}

// Active reports the state of the attempt for a device, if any.
func (o *Orchestrator) Active(deviceID string) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.attempts[deviceID]
	if !ok {
		return "", false
	}

	return a.state, true
}

// CancelAll aborts every active attempt, used on shutdown.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	attempts := make([]*attempt, 0, len(o.attempts))

	for id, a := range o.attempts {
		attempts = append(attempts, a)
		delete(o.attempts, id)
	}
	o.mu.Unlock()

	for _, a := range attempts {
		if a.txn != nil {
			_ = a.txn.Close()
		}
	}
}

// advance runs handshakes from the head of the queue. Protocols that
// require no PIN complete inline and the queue keeps draining; the
// first PIN demand parks the attempt in awaiting_pin until SubmitPIN.
// An empty queue completes the attempt.
func (o *Orchestrator) advance(ctx context.Context, a *attempt) error {
	for {
		o.mu.Lock()

		if o.attempts[a.deviceID] != a {
			o.mu.Unlock()
			return ErrAttemptCancelled
		}

		if len(a.queue) == 0 {
			a.state = StateCompleted
			delete(o.attempts, a.deviceID)
			o.mu.Unlock()

			o.events.Broadcast(models.Event{
				Type:    models.EventPairingStatus,
				Status:  models.PairingStageCompleted,
				Address: a.address,
				Message: fmt.Sprintf("Pairing completed for %s", a.name),
			})

			o.logger.Info().Str("device_id", a.deviceID).Msg("pairing attempt completed")

			return nil
		}

		a.current = a.queue[0]
		a.queue = a.queue[1:]
		a.state = StateRequesting
		adapter := o.adapters[a.current]
		target := protocol.Target{
			DeviceID: a.deviceID,
			Name:     a.name,
			Address:  a.address,
			Port:     a.ports[a.current],
		}
		o.mu.Unlock()

		txn, err := adapter.StartPairing(ctx, target)
		if err != nil {
			o.fail(a, err)
			return err
		}

		o.mu.Lock()
		if o.attempts[a.deviceID] != a {
			o.mu.Unlock()
			_ = txn.Close()

			return ErrAttemptCancelled
		}
		a.txn = txn
		o.mu.Unlock()

		pinRequired, err := txn.Begin(ctx)
		if err != nil {
			o.fail(a, err)
			return err
		}

		if pinRequired {
			o.mu.Lock()
			if o.attempts[a.deviceID] != a {
				o.mu.Unlock()
				_ = txn.Close()

				return ErrAttemptCancelled
			}

			a.state = StateAwaitingPin
			o.mu.Unlock()

			o.events.Broadcast(models.Event{
				Type:     models.EventPairingStatus,
				Status:   models.PairingStageStarted,
				Protocol: a.current,
				Message:  fmt.Sprintf("Enter PIN for %s pairing", a.current),
			})

			return nil
		}

		o.events.Broadcast(models.Event{
			Type:     models.EventPairingStatus,
			Status:   models.PairingStageStarted,
			Protocol: a.current,
			Message:  fmt.Sprintf("Pairing %s", a.current),
		})

		credential, err := txn.Finish(ctx, "")
		if err != nil {
			o.fail(a, err)
			return err
		}

		if err := o.completeStep(ctx, a, credential); err != nil {
			return err
		}
	}
}

// completeStep persists the credential for the current protocol and
// marks it paired. A failed credential write is fatal for the attempt so
// pairing is never reported complete without durable credentials.
func (o *Orchestrator) completeStep(ctx context.Context, a *attempt, credential string) error {
	err := o.store.SaveProtocolCredential(ctx, a.deviceID, a.current, a.name, a.address, credential)
	if err != nil {
		o.fail(a, fmt.Errorf("persist credential: %w", err))
		return err
	}

	o.registry.SetPaired(a.deviceID, a.current)

	if a.txn != nil {
		_ = a.txn.Close()
		a.txn = nil
	}

	o.logger.Info().
		Str("device_id", a.deviceID).
		Str("protocol", string(a.current)).
		Msg("protocol paired")

	return nil
}

// fail terminates the attempt at the current step. Already-paired
// protocols from earlier steps are left intact.
func (o *Orchestrator) fail(a *attempt, cause error) {
	o.mu.Lock()

	cancelled := o.attempts[a.deviceID] != a
	if !cancelled {
		delete(o.attempts, a.deviceID)
	}

	a.state = StateFailed
	a.lastErr = cause
	o.mu.Unlock()

	if a.txn != nil {
		_ = a.txn.Close()
		a.txn = nil
	}

	if cancelled {
		return
	}

	o.events.Broadcast(models.Event{
		Type:     models.EventPairingStatus,
		Status:   models.PairingStageFailed,
		Protocol: a.current,
		Message:  cause.Error(),
	})

	o.logger.Warn().
		Err(cause).
		Str("device_id", a.deviceID).
		Str("protocol", string(a.current)).
		Msg("pairing attempt failed")
}
