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

// Package store persists per-device protocol credentials and favorite
// apps. The engine treats it as an external transactional resource: a
// failed credential write must never be reported as pairing success.
package store

import (
	"context"

	"github.com/carverauto/castbridge/pkg/models"
)

// StoredDevice is one persisted device with all of its paired protocol
// credentials.
type StoredDevice struct {
	DeviceID    string
	Name        string
	Address     string
	Credentials map[models.Protocol]string
}

// Device converts the stored record into the registry model. Every stored
// protocol is paired by definition; online state is unknown until a scan
// confirms it.
func (s *StoredDevice) Device() *models.Device {
	protocols := make(map[models.Protocol]models.PairingStatus, len(s.Credentials))
	for p := range s.Credentials {
		protocols[p] = models.PairingStatusPaired
	}

	return &models.Device{
		ID:        s.DeviceID,
		Name:      s.Name,
		Address:   s.Address,
		Protocols: protocols,
		Online:    models.OnlineUnknown,
	}
}

// Store is the credential store gateway.
type Store interface {
	// LoadDevices returns every persisted device with its credentials.
	LoadDevices(ctx context.Context) ([]StoredDevice, error)

	// SaveProtocolCredential upserts one protocol credential for a device.
	SaveProtocolCredential(ctx context.Context, deviceID string, protocol models.Protocol, name, address, credential string) error

	// Credentials returns the per-protocol credentials for one device.
	Credentials(ctx context.Context, deviceID string) (map[models.Protocol]string, error)

	// DeleteDevice removes every credential and favorite for a device.
	DeleteDevice(ctx context.Context, deviceID string) error

	// LoadFavorites returns the favorite apps scoped to a device.
	LoadFavorites(ctx context.Context, deviceID string) ([]models.FavoriteApp, error)

	// SetFavorite adds or removes a favorite. Idempotent in both
	// directions.
	SetFavorite(ctx context.Context, deviceID, bundleID, name, iconURL string, isFavorite bool) error

	// Close releases the underlying database handle.
	Close() error
}
