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

// Package companion implements the control protocol adapter: remote
// commands, power management and the app catalog.
package companion

import (
	"context"
	"fmt"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/protocol"
	"github.com/carverauto/castbridge/pkg/protocol/wire"
)

const serviceName = "companion"

// Adapter speaks the companion-link control protocol.
type Adapter struct {
	logger logger.Logger
}

// New creates the control adapter.
func New(log logger.Logger) *Adapter {
	return &Adapter{logger: log}
}

func (*Adapter) Protocol() models.Protocol {
	return models.ProtocolControl
}

func (a *Adapter) StartPairing(ctx context.Context, target protocol.Target) (protocol.PairingTransaction, error) {
	a.logger.Debug().Str("device_id", target.DeviceID).Msg("starting control pairing")

	return wire.StartPairing(ctx, target.Address, target.Port, serviceName)
}

func (a *Adapter) Open(ctx context.Context, target protocol.Target, credential string) (protocol.Session, error) {
	conn, err := wire.OpenSession(ctx, target.Address, target.Port, serviceName, credential)
	if err != nil {
		return nil, err
	}

	a.logger.Debug().Str("device_id", target.DeviceID).Msg("control session open")

	return &session{conn: conn}, nil
}

// session implements protocol.CommandSession.
type session struct {
	conn *wire.SessionConn
}

func (*session) Protocol() models.Protocol {
	return models.ProtocolControl
}

func (s *session) Send(ctx context.Context, req models.CommandRequest) error {
	if req.Command == models.CommandLaunchApp {
		return s.LaunchApp(ctx, req.BundleID)
	}

	if !models.IsRemoteCommand(string(req.Command)) {
		return fmt.Errorf("%w: %s", protocol.ErrUnsupportedCommand, req.Command)
	}

	_, err := s.conn.Request(ctx, &wire.Frame{Type: wire.TypeCommand, Command: string(req.Command)})
	if err != nil {
		return fmt.Errorf("command %s: %w", req.Command, err)
	}

	return nil
}

func (s *session) PowerState(ctx context.Context) (models.PowerState, error) {
	resp, err := s.conn.Request(ctx, &wire.Frame{Type: wire.TypeGetPower})
	if err != nil {
		return models.PowerStateUnknown, err
	}

	switch resp.Power {
	case string(models.PowerStateOn):
		return models.PowerStateOn, nil
	case string(models.PowerStateOff):
		return models.PowerStateOff, nil
	default:
		return models.PowerStateUnknown, nil
	}
}

func (s *session) Apps(ctx context.Context) ([]models.AppInfo, error) {
	resp, err := s.conn.Request(ctx, &wire.Frame{Type: wire.TypeGetApps})
	if err != nil {
		return nil, fmt.Errorf("fetch app list: %w", err)
	}

	apps := make([]models.AppInfo, 0, len(resp.Apps))
	for _, app := range resp.Apps {
		apps = append(apps, models.AppInfo{BundleID: app.BundleID, Name: app.Name})
	}

	return apps, nil
}

func (s *session) LaunchApp(ctx context.Context, bundleID string) error {
	_, err := s.conn.Request(ctx, &wire.Frame{Type: wire.TypeLaunchApp, BundleID: bundleID})
	if err != nil {
		return fmt.Errorf("launch %s: %w", bundleID, err)
	}

	return nil
}

func (s *session) Close() error {
	return s.conn.Close()
}
