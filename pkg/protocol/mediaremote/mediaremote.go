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

// Package mediaremote implements the metadata protocol adapter: the
// pushed now-playing stream and artwork retrieval.
package mediaremote

import (
	"context"
	"fmt"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/protocol"
	"github.com/carverauto/castbridge/pkg/protocol/wire"
)

const serviceName = "mediaremote"

// Adapter speaks the mediaremote metadata protocol.
type Adapter struct {
	logger logger.Logger
}

// New creates the metadata adapter.
func New(log logger.Logger) *Adapter {
	return &Adapter{logger: log}
}

func (*Adapter) Protocol() models.Protocol {
	return models.ProtocolMetadata
}

func (a *Adapter) StartPairing(ctx context.Context, target protocol.Target) (protocol.PairingTransaction, error) {
	a.logger.Debug().Str("device_id", target.DeviceID).Msg("starting metadata pairing")

	return wire.StartPairing(ctx, target.Address, target.Port, serviceName)
}

func (a *Adapter) Open(ctx context.Context, target protocol.Target, credential string) (protocol.Session, error) {
	conn, err := wire.OpenSession(ctx, target.Address, target.Port, serviceName, credential)
	if err != nil {
		return nil, err
	}

	a.logger.Debug().Str("device_id", target.DeviceID).Msg("metadata session open")

	s := &session{conn: conn, updates: make(chan models.NowPlaying, 16)}

	go s.pump()

	return s, nil
}

// session implements protocol.MetadataSession.
type session struct {
	conn    *wire.SessionConn
	updates chan models.NowPlaying
}

func (*session) Protocol() models.Protocol {
	return models.ProtocolMetadata
}

// pump converts wire playing frames to model snapshots. Closes the
// updates channel when the link drops.
func (s *session) pump() {
	defer close(s.updates)

	for playing := range s.conn.Updates() {
		s.updates <- fromWire(playing)
	}
}

func (s *session) Updates() <-chan models.NowPlaying {
	return s.updates
}

func (s *session) Playing(ctx context.Context) (models.NowPlaying, error) {
	resp, err := s.conn.Request(ctx, &wire.Frame{Type: wire.TypeGetNowPlaying})
	if err != nil {
		return models.NowPlaying{}, fmt.Errorf("fetch playing state: %w", err)
	}

	if resp.Playing == nil {
		return models.NowPlaying{}, nil
	}

	return fromWire(*resp.Playing), nil
}

func (s *session) Artwork(ctx context.Context) (string, error) {
	resp, err := s.conn.Request(ctx, &wire.Frame{Type: wire.TypeGetArtwork})
	if err != nil {
		return "", fmt.Errorf("fetch artwork: %w", err)
	}

	return resp.Artwork, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

func fromWire(p wire.Playing) models.NowPlaying {
	return models.NowPlaying{
		Title:       p.Title,
		Artist:      p.Artist,
		Album:       p.Album,
		App:         p.App,
		ArtworkID:   p.ArtworkID,
		DeviceState: p.DeviceState,
	}
}
