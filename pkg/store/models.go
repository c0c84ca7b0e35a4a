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

package store

import "time"

// DeviceCredential is one paired protocol for one device. The composite
// primary key allows several credentials per device, one per protocol.
type DeviceCredential struct {
	DeviceID   string    `gorm:"primaryKey"`
	Protocol   string    `gorm:"primaryKey"`
	Name       string    `gorm:"not null"`
	Address    string    `gorm:"not null"`
	Credential string    `gorm:"not null"`
	PairedAt   time.Time `gorm:"autoUpdateTime"`
}

// FavoriteRecord is a favorite app scoped to one device.
type FavoriteRecord struct {
	DeviceID  string    `gorm:"primaryKey"`
	BundleID  string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	IconURL   string
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
