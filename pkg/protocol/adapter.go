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

// Package protocol defines the uniform adapter contract over the device
// communication protocols. Each adapter hides one protocol's handshake
// and wire format behind the same pairing and session interfaces.
package protocol

import (
	"context"

	"github.com/carverauto/castbridge/pkg/models"
)

// Target identifies one protocol endpoint on a device.
type Target struct {
	DeviceID string
	Name     string
	Address  string
	Port     int
}

// Adapter is a capability-scoped client for one device protocol.
type Adapter interface {
	// Protocol names the protocol this adapter speaks.
	Protocol() models.Protocol

	// StartPairing opens a pairing transaction with the device. The
	// transaction owns its connection until Finish or Close.
	StartPairing(ctx context.Context, target Target) (PairingTransaction, error)

	// Open establishes an authenticated session using a previously
	// paired credential.
	Open(ctx context.Context, target Target, credential string) (Session, error)
}

// PairingTransaction is one in-flight protocol handshake.
type PairingTransaction interface {
	// Begin starts the handshake and reports whether the device demands
	// a PIN before Finish can succeed.
	Begin(ctx context.Context) (pinRequired bool, err error)

	// Finish completes the handshake, validating the PIN when one was
	// demanded, and returns the credential to persist. A rejected PIN
	// returns ErrPinRejected and leaves the transaction open for
	// another Finish with a corrected PIN.
	Finish(ctx context.Context, pin string) (credential string, err error)

	// Close aborts the handshake and releases the connection.
	Close() error
}

// Session is an open, authenticated adapter session.
type Session interface {
	Protocol() models.Protocol
	Close() error
}

// CommandSession is the control protocol surface: remote commands, power
// management and the app catalog.
type CommandSession interface {
	Session

	// Send executes one remote command. Unsupported commands return
	// ErrUnsupportedCommand without closing the session.
	Send(ctx context.Context, req models.CommandRequest) error

	// PowerState reports the device power state.
	PowerState(ctx context.Context) (models.PowerState, error)

	// Apps fetches the installed app catalog. Pull-based: the device
	// does not push catalog changes.
	Apps(ctx context.Context) ([]models.AppInfo, error)

	// LaunchApp opens an app by bundle id.
	LaunchApp(ctx context.Context, bundleID string) error
}

// MetadataSession is the now-playing protocol surface. Updates delivers
// pushed playback changes until the session closes; the channel closes
// when the adapter link is lost.
type MetadataSession interface {
	Session

	// Updates is the push stream of playback snapshots.
	Updates() <-chan models.NowPlaying

	// Playing fetches the current snapshot once, used right after
	// connecting before the first push arrives.
	Playing(ctx context.Context) (models.NowPlaying, error)

	// Artwork fetches the current artwork as a data: URI.
	Artwork(ctx context.Context) (string, error)
}
