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

package models

// NowPlaying is the latest playback snapshot from the metadata adapter.
// Artwork, when present, is a data: URI so clients need no second fetch.
type NowPlaying struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	App         string `json:"app,omitempty"`
	Artwork     string `json:"artwork,omitempty"`
	HasArtwork  bool   `json:"has_artwork"`
	DeviceState string `json:"device_state"`
	ArtworkID   string `json:"-"`
}

// AppInfo describes an installed application reported by the control
// adapter, joined with the favorite flag from the credential store.
type AppInfo struct {
	BundleID   string `json:"bundle_id"`
	Name       string `json:"name"`
	IconURL    string `json:"icon_url,omitempty"`
	IsFavorite bool   `json:"is_favorite"`
}

// FavoriteApp is a persisted favorite, scoped to one device.
type FavoriteApp struct {
	DeviceID string `json:"device_id"`
	BundleID string `json:"bundle_id"`
	Name     string `json:"name"`
	IconURL  string `json:"icon_url,omitempty"`
}
