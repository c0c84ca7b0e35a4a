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

package wire

import (
	"context"
	"fmt"

	"github.com/carverauto/castbridge/pkg/protocol"
)

// Pairing is one in-flight handshake on a dedicated connection. It
// implements protocol.PairingTransaction for every adapter; only the
// service tag differs per protocol.
type Pairing struct {
	conn    *Conn
	service string
}

// StartPairing dials the device service and prepares a handshake.
func StartPairing(ctx context.Context, address string, port int, service string) (*Pairing, error) {
	conn, err := Dial(ctx, address, port)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrDeviceUnreachable, err)
	}

	return &Pairing{conn: conn, service: service}, nil
}

// Begin announces the pairing request and reports whether the device
// demands a PIN.
func (p *Pairing) Begin(ctx context.Context) (bool, error) {
	resp, err := p.conn.RoundTrip(ctx, &Frame{Type: TypePairStart, Service: p.service})
	if err != nil {
		return false, fmt.Errorf("%w: %w", protocol.ErrDeviceUnreachable, err)
	}

	if resp.Type == TypeError || (resp.Type == TypePairResult && !resp.OK && !resp.PinRequired) {
		return false, fmt.Errorf("%w: %s", protocol.ErrHandshakeRejected, resp.Err)
	}

	return resp.PinRequired, nil
}

// Finish validates the PIN and returns the session credential. A
// rejected PIN leaves the transaction open so a corrected PIN can be
// submitted without restarting the handshake.
func (p *Pairing) Finish(ctx context.Context, pin string) (string, error) {
	resp, err := p.conn.RoundTrip(ctx, &Frame{Type: TypePairVerify, Service: p.service, PIN: pin})
	if err != nil {
		return "", fmt.Errorf("%w: %w", protocol.ErrDeviceUnreachable, err)
	}

	if resp.Type == TypeError || !resp.OK {
		if resp.Code == CodePinRejected {
			return "", protocol.ErrPinRejected
		}

		return "", fmt.Errorf("%w: %s", protocol.ErrHandshakeRejected, resp.Err)
	}

	if resp.Token == "" {
		return "", fmt.Errorf("%w: empty credential", protocol.ErrHandshakeRejected)
	}

	return resp.Token, nil
}

// Close aborts the handshake.
func (p *Pairing) Close() error {
	return p.conn.Close()
}
