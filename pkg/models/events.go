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

// EventType labels an engine-to-client event.
type EventType string

const (
	EventDiscoveryResults EventType = "discovery_results"
	EventStatus           EventType = "status"
	EventPairingStatus    EventType = "pairing_status"
	EventNowPlaying       EventType = "now_playing"
	EventAppList          EventType = "app_list"
	EventError            EventType = "error"
)

// PairingStage is the status field of pairing_status events.
type PairingStage string

const (
	PairingStageStarted   PairingStage = "started"
	PairingStageCompleted PairingStage = "completed"
	PairingStageFailed    PairingStage = "failed"
)

// Event is a single engine-to-client message. The embedded NowPlaying
// flattens its fields into now_playing events; it is nil for every other
// type.
type Event struct {
	Type EventType `json:"type"`

	// discovery_results
	Devices []DeviceView `json:"devices,omitempty"`

	// status, pairing_status and error
	Message string `json:"message,omitempty"`

	// pairing_status
	Status   PairingStage `json:"status,omitempty"`
	Protocol Protocol     `json:"protocol,omitempty"`
	Address  string       `json:"address,omitempty"`

	// app_list
	AllApps   []AppInfo     `json:"all_apps,omitempty"`
	Favorites []FavoriteApp `json:"favorites,omitempty"`

	*NowPlaying
}

// Reliable reports whether the event must be delivered to a subscriber or
// the subscriber dropped. Only now_playing updates may be discarded under
// load (latest wins, never reordered).
func (e Event) Reliable() bool {
	return e.Type != EventNowPlaying
}

// NewDiscoveryEvent builds a discovery_results snapshot event. Devices is
// never nil so an empty scan still serializes as a heartbeat with an
// empty list.
func NewDiscoveryEvent(devices []DeviceView) Event {
	if devices == nil {
		devices = []DeviceView{}
	}

	return Event{Type: EventDiscoveryResults, Devices: devices}
}

// NewStatusEvent builds a status event carrying a confirmation message.
func NewStatusEvent(message string) Event {
	return Event{Type: EventStatus, Message: message}
}

// NewErrorEvent builds an error event.
func NewErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// NewNowPlayingEvent wraps a playback snapshot.
func NewNowPlayingEvent(np NowPlaying) Event {
	return Event{Type: EventNowPlaying, NowPlaying: &np}
}
