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

// Package airplay implements the mirroring protocol adapter. The engine
// only opens and holds the authenticated link; mirroring payload
// transport is handled device-side once the session exists.
package airplay

import (
	"context"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/protocol"
	"github.com/carverauto/castbridge/pkg/protocol/wire"
)

const serviceName = "airplay"

// Adapter speaks the airplay mirroring protocol.
type Adapter struct {
	logger logger.Logger
}

// New creates the mirroring adapter.
func New(log logger.Logger) *Adapter {
	return &Adapter{logger: log}
}

func (*Adapter) Protocol() models.Protocol {
	return models.ProtocolMirroring
}

func (a *Adapter) StartPairing(ctx context.Context, target protocol.Target) (protocol.PairingTransaction, error) {
	a.logger.Debug().Str("device_id", target.DeviceID).Msg("starting mirroring pairing")

	return wire.StartPairing(ctx, target.Address, target.Port, serviceName)
}

func (a *Adapter) Open(ctx context.Context, target protocol.Target, credential string) (protocol.Session, error) {
	conn, err := wire.OpenSession(ctx, target.Address, target.Port, serviceName, credential)
	if err != nil {
		return nil, err
	}

	a.logger.Debug().Str("device_id", target.DeviceID).Msg("mirroring session open")

	return &session{conn: conn}, nil
}

// session implements protocol.Session.
type session struct {
	conn *wire.SessionConn
}

func (*session) Protocol() models.Protocol {
	return models.ProtocolMirroring
}

func (s *session) Close() error {
	return s.conn.Close()
}
