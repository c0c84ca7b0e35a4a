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

// Package models defines the shared data model for the castbridge engine.
package models

// Protocol identifies one of the device communication protocols.
type Protocol string

const (
	// ProtocolControl is the command/control channel (companion-link).
	ProtocolControl Protocol = "control"
	// ProtocolMetadata is the now-playing/metadata channel (mediaremote).
	ProtocolMetadata Protocol = "metadata"
	// ProtocolMirroring is the screen-mirroring channel (airplay).
	ProtocolMirroring Protocol = "mirroring"
)

// ProtocolPriority is the fixed pairing order: control before metadata
// before mirroring.
var ProtocolPriority = []Protocol{ProtocolControl, ProtocolMetadata, ProtocolMirroring}

// Valid reports whether p names a known protocol.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolControl, ProtocolMetadata, ProtocolMirroring:
		return true
	default:
		return false
	}
}

// PairingStatus is the per-protocol pairing state of a device.
type PairingStatus string

const (
	PairingStatusUnpaired PairingStatus = "unpaired"
	PairingStatusPaired   PairingStatus = "paired"
)

// OnlineState is the tri-state availability of a device. A device misses
// one scan and becomes OnlineUnknown; a second consecutive miss makes it
// OnlineFalse.
type OnlineState int

const (
	OnlineFalse OnlineState = iota
	OnlineUnknown
	OnlineTrue
)

// Ptr renders the tri-state as the wire representation: true, false or
// null (unknown).
func (s OnlineState) Ptr() *bool {
	switch s {
	case OnlineTrue:
		v := true
		return &v
	case OnlineFalse:
		v := false
		return &v
	default:
		return nil
	}
}

// Device is a tracked streaming device. Identity is the protocol
// independent device ID derived from advertised service identifiers, not
// the network address, which may rotate via DHCP.
type Device struct {
	ID        string
	Name      string
	Address   string
	Protocols map[Protocol]PairingStatus
	Ports     map[Protocol]int
	Online    OnlineState
}

// Paired reports whether at least one protocol has completed pairing.
func (d *Device) Paired() bool {
	for _, status := range d.Protocols {
		if status == PairingStatusPaired {
			return true
		}
	}

	return false
}

// PairedProtocols returns the paired protocols in priority order.
func (d *Device) PairedProtocols() []Protocol {
	var out []Protocol

	for _, p := range ProtocolPriority {
		if d.Protocols[p] == PairingStatusPaired {
			out = append(out, p)
		}
	}

	return out
}

// UnpairedProtocols returns the advertised but unpaired protocols in
// priority order.
func (d *Device) UnpairedProtocols() []Protocol {
	var out []Protocol

	for _, p := range ProtocolPriority {
		if status, ok := d.Protocols[p]; ok && status != PairingStatusPaired {
			out = append(out, p)
		}
	}

	return out
}

// Clone returns a deep copy so registry snapshots never alias live state.
func (d *Device) Clone() *Device {
	cp := *d
	cp.Protocols = make(map[Protocol]PairingStatus, len(d.Protocols))

	for p, status := range d.Protocols {
		cp.Protocols[p] = status
	}

	cp.Ports = make(map[Protocol]int, len(d.Ports))

	for p, port := range d.Ports {
		cp.Ports[p] = port
	}

	return &cp
}

// View renders the device for the client protocol.
func (d *Device) View() DeviceView {
	services := make([]string, 0, len(d.Protocols))

	for _, p := range ProtocolPriority {
		if _, ok := d.Protocols[p]; ok {
			services = append(services, string(p))
		}
	}

	return DeviceView{
		Name:     d.Name,
		Address:  d.Address,
		DeviceID: d.ID,
		Services: services,
		Paired:   d.Paired(),
		Online:   d.Online.Ptr(),
	}
}

// DeviceView is the JSON shape of a device in discovery_results events.
// Online is a tri-state: true, false, or null while a first missed scan
// leaves the status unconfirmed.
type DeviceView struct {
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	DeviceID string   `json:"device_id"`
	Services []string `json:"services"`
	Paired   bool     `json:"paired"`
	Online   *bool    `json:"online"`
}
