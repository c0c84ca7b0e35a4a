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

// Package wire implements the framing shared by all device protocol
// adapters: newline-delimited JSON frames over TCP, a PIN pairing
// handshake and token-authenticated sessions.
package wire

// Frame types exchanged with a device.
const (
	TypePairStart  = "pair_start"
	TypePairVerify = "pair_verify"
	TypePairResult = "pair_result"

	TypeAuth       = "auth"
	TypeAuthResult = "auth_result"

	TypeCommand   = "command"
	TypeLaunchApp = "launch_app"
	TypeAck       = "ack"
	TypeError     = "error"

	TypeGetPower = "get_power"
	TypePower    = "power"

	TypeGetApps = "get_apps"
	TypeApps    = "apps"

	TypeGetNowPlaying = "get_now_playing"
	TypeNowPlaying    = "now_playing"
	TypeGetArtwork    = "get_artwork"
	TypeArtwork       = "artwork"
)

// Error codes carried in result frames.
const (
	CodePinRejected = "pin_rejected"
	CodeAuthFailed  = "auth_failed"
	CodeRejected    = "rejected"
	CodeUnsupported = "unsupported"
)

// Playing is the playback state as reported on the wire.
type Playing struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	App         string `json:"app,omitempty"`
	ArtworkID   string `json:"artwork_id,omitempty"`
	DeviceState string `json:"device_state,omitempty"`
}

// App is one installed application as reported on the wire.
type App struct {
	BundleID string `json:"bundle_id"`
	Name     string `json:"name"`
}

// Frame is one message on a device link. Type decides which fields are
// populated.
type Frame struct {
	Type string `json:"type"`

	// pairing and auth
	Service     string `json:"service,omitempty"`
	PIN         string `json:"pin,omitempty"`
	PinRequired bool   `json:"pin_required,omitempty"`
	Token       string `json:"token,omitempty"`

	// results
	OK   bool   `json:"ok,omitempty"`
	Code string `json:"code,omitempty"`
	Err  string `json:"error,omitempty"`

	// commands
	Command  string `json:"command,omitempty"`
	BundleID string `json:"bundle_id,omitempty"`

	// state
	Power   string   `json:"power,omitempty"`
	Apps    []App    `json:"apps,omitempty"`
	Playing *Playing `json:"playing,omitempty"`
	Artwork string   `json:"artwork,omitempty"`
}
