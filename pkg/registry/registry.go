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

// Package registry reconciles live scan results with the tracked device
// set. It is the single authoritative owner of device state; every other
// component reads through it and mutates through its methods.
package registry

import (
	"sync"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/scan"
)

const defaultOfflineAfterMisses = 2

// ChangeSet summarizes one reconciliation pass.
type ChangeSet struct {
	New         []string
	Updated     []string
	WentOffline []string
}

// Empty reports whether the pass changed nothing.
func (c ChangeSet) Empty() bool {
	return len(c.New) == 0 && len(c.Updated) == 0 && len(c.WentOffline) == 0
}

// DeviceRegistry tracks devices across scan passes. A device missing from
// one pass becomes OnlineUnknown; missing from offlineAfter consecutive
// passes becomes OnlineFalse. A reappearing device is OnlineTrue
// immediately.
type DeviceRegistry struct {
	mu           sync.RWMutex
	devices      map[string]*models.Device
	misses       map[string]int
	offlineAfter int
	logger       logger.Logger
}

// NewDeviceRegistry creates an empty registry. offlineAfter <= 0 uses the
// default of two missed scans.
func NewDeviceRegistry(offlineAfter int, log logger.Logger) *DeviceRegistry {
	if offlineAfter <= 0 {
		offlineAfter = defaultOfflineAfterMisses
	}

	return &DeviceRegistry{
		devices:      make(map[string]*models.Device),
		misses:       make(map[string]int),
		offlineAfter: offlineAfter,
		logger:       log,
	}
}

// Seed loads persisted devices before the first scan has confirmed them.
// Seeded devices start as OnlineUnknown so clients render them as loading
// rather than offline.
func (r *DeviceRegistry) Seed(devices []*models.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range devices {
		if _, exists := r.devices[d.ID]; exists {
			continue
		}

		seeded := d.Clone()
		seeded.Online = models.OnlineUnknown
		r.devices[d.ID] = seeded
	}
}

// Reconcile merges one scan pass into the registry and returns the
// change-set.
func (r *DeviceRegistry) Reconcile(results []scan.Result) ChangeSet {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changes ChangeSet

	seen := make(map[string]struct{}, len(results))

	for i := range results {
		res := &results[i]
		seen[res.UID] = struct{}{}

		dev, exists := r.devices[res.UID]
		if !exists {
			dev = &models.Device{
				ID:        res.UID,
				Name:      res.Name,
				Address:   res.Address,
				Protocols: make(map[models.Protocol]models.PairingStatus),
				Ports:     make(map[models.Protocol]int),
				Online:    models.OnlineTrue,
			}

			for _, svc := range res.Services {
				dev.Protocols[svc.Protocol] = models.PairingStatusUnpaired
				dev.Ports[svc.Protocol] = svc.Port
			}

			r.devices[res.UID] = dev
			changes.New = append(changes.New, res.UID)

			r.logger.Info().Str("device_id", res.UID).Str("name", res.Name).Msg("new device discovered")

			continue
		}

		updated := dev.Online != models.OnlineTrue ||
			dev.Address != res.Address ||
			(res.Name != "" && dev.Name != res.Name)

		dev.Online = models.OnlineTrue
		delete(r.misses, res.UID)

		if res.Address != "" {
			dev.Address = res.Address
		}

		if res.Name != "" {
			dev.Name = res.Name
		}

		// Newly advertised protocols start unpaired; pairing state for
		// known protocols is never touched by reconciliation.
		if dev.Ports == nil {
			dev.Ports = make(map[models.Protocol]int)
		}

		for _, svc := range res.Services {
			if _, known := dev.Protocols[svc.Protocol]; !known {
				dev.Protocols[svc.Protocol] = models.PairingStatusUnpaired
				updated = true
			}

			dev.Ports[svc.Protocol] = svc.Port
		}

		if updated {
			changes.Updated = append(changes.Updated, res.UID)
		}
	}

	for id, dev := range r.devices {
		if _, ok := seen[id]; ok {
			continue
		}

		if dev.Online == models.OnlineFalse {
			continue
		}

		r.misses[id]++

		if r.misses[id] >= r.offlineAfter {
			dev.Online = models.OnlineFalse
			delete(r.misses, id)
			changes.WentOffline = append(changes.WentOffline, id)

			r.logger.Info().Str("device_id", id).Msg("device went offline")

			continue
		}

		if dev.Online == models.OnlineTrue {
			dev.Online = models.OnlineUnknown
			changes.Updated = append(changes.Updated, id)
		}
	}

	return changes
}

// Get returns a copy of a device.
func (r *DeviceRegistry) Get(deviceID string) (*models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return nil, false
	}

	return dev.Clone(), true
}

// GetByAddress returns a copy of the device currently at addr.
func (r *DeviceRegistry) GetByAddress(addr string) (*models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, dev := range r.devices {
		if dev.Address == addr {
			return dev.Clone(), true
		}
	}

	return nil, false
}

// Snapshot renders every tracked device for a discovery_results event,
// online devices first, then by name.
func (r *DeviceRegistry) Snapshot() []models.DeviceView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]models.DeviceView, 0, len(r.devices))
	for _, dev := range r.devices {
		views = append(views, dev.View())
	}

	sortViews(views)

	return views
}

// SetPaired marks one protocol as paired. Used by the pairing
// orchestrator after the credential write succeeded.
func (r *DeviceRegistry) SetPaired(deviceID string, protocol models.Protocol) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	if !ok {
		return
	}

	if dev.Protocols == nil {
		dev.Protocols = make(map[models.Protocol]models.PairingStatus)
	}

	dev.Protocols[protocol] = models.PairingStatusPaired
}

// Remove drops a device after credential revocation.
func (r *DeviceRegistry) Remove(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.devices, deviceID)
	delete(r.misses, deviceID)
}
