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

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/carverauto/castbridge/pkg/models"
)

const maxMessageSize = 64 * 1024

// ClientMessage is one command from a WebSocket client. Which fields
// matter depends on the command.
type ClientMessage struct {
	Command    string `json:"command"`
	Address    string `json:"address,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	PIN        string `json:"pin,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	BundleID   string `json:"bundle_id,omitempty"`
	Name       string `json:"name,omitempty"`
	IconURL    string `json:"icon_url,omitempty"`
	IsFavorite *bool  `json:"is_favorite,omitempty"`
}

// wsSession is the per-connection request state. The WebSocket that
// started a pairing attempt is the one whose PINs route to it.
type wsSession struct {
	server        *APIServer
	clientID      string
	pairingDevice string
}

// handleWebSocket upgrades the connection, subscribes it to the event
// hub and processes client commands until the peer goes away. All writes
// flow through the hub so event order is preserved.
func (s *APIServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn.SetReadLimit(maxMessageSize)

	clientID := s.engine.Hub().Subscribe(conn)

	s.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("client_id", clientID).
		Msg("websocket client connected")

	ws := &wsSession{server: s, clientID: clientID}

	defer func() {
		s.engine.Hub().Unsubscribe(clientID)

		s.logger.Info().
			Str("remote_addr", r.RemoteAddr).
			Str("client_id", clientID).
			Msg("websocket client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("client_id", clientID).Msg("websocket read failed")
			}

			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ws.reply(models.NewErrorEvent("invalid message: " + err.Error()))
			continue
		}

		ws.dispatch(r, msg)
	}
}

// dispatch executes one client command. Failures surface as error events
// on the requesting connection; state changes broadcast to everyone.
func (ws *wsSession) dispatch(r *http.Request, msg ClientMessage) {
	ctx := r.Context()
	engine := ws.server.engine

	switch msg.Command {
	case "discover", "scan":
		engine.Scan(ctx)

	case "get_paired":
		// Stored devices answer immediately as a discovery snapshot;
		// liveness stays unknown until a scan confirms it.
		devices, err := engine.PairedDevices(ctx)
		if err != nil {
			ws.replyError(err)
			return
		}

		ws.reply(models.NewDiscoveryEvent(devices))

	case "connect":
		if err := engine.Connect(ctx, ws.deviceRef(msg)); err != nil {
			ws.replyError(err)
		}

	case "disconnect":
		engine.Disconnect()

	case "pair_start", "pair":
		var only *models.Protocol

		if msg.Protocol != "" {
			p := models.Protocol(msg.Protocol)
			only = &p
		}

		deviceID, err := engine.StartPairing(ctx, ws.deviceRef(msg), only)
		if err != nil {
			ws.replyError(err)
			return
		}

		ws.pairingDevice = deviceID

	case "pair_pin":
		if ws.pairingDevice == "" {
			ws.reply(models.NewErrorEvent("no pairing in progress"))
			return
		}

		if err := engine.SubmitPIN(ctx, ws.pairingDevice, msg.PIN); err != nil {
			ws.replyError(err)
		}

	case "cancel_pair":
		if ws.pairingDevice == "" {
			ws.reply(models.NewErrorEvent("no pairing in progress"))
			return
		}

		if err := engine.CancelPairing(ws.pairingDevice); err != nil {
			ws.replyError(err)
			return
		}

		ws.pairingDevice = ""

	case "delete_device":
		if err := engine.DeleteDevice(ctx, ws.deviceRef(msg)); err != nil {
			ws.replyError(err)
		}

	case "get_apps":
		deviceID, ok := ws.targetDevice(msg)
		if !ok {
			ws.reply(models.NewErrorEvent("no device specified or connected"))
			return
		}

		apps, favorites, err := engine.Apps(ctx, deviceID)
		if err != nil {
			ws.replyError(err)
			return
		}

		ws.reply(models.Event{Type: models.EventAppList, AllApps: apps, Favorites: favorites})

	case "toggle_favorite":
		deviceID, ok := ws.targetDevice(msg)
		if !ok {
			ws.reply(models.NewErrorEvent("no device specified or connected"))
			return
		}

		var (
			isFavorite bool
			err        error
		)

		if msg.IsFavorite != nil {
			isFavorite, err = engine.SetFavorite(ctx, deviceID, msg.BundleID, msg.Name, msg.IconURL, *msg.IsFavorite)
		} else {
			isFavorite, err = engine.ToggleFavorite(ctx, deviceID, msg.BundleID, msg.Name)
		}

		if err != nil {
			ws.replyError(err)
			return
		}

		verb := "Removed favorite"
		if isFavorite {
			verb = "Added favorite"
		}

		ws.reply(models.NewStatusEvent(fmt.Sprintf("%s %s", verb, msg.BundleID)))

	case "launch_app":
		err := engine.Command(ctx, models.CommandRequest{
			Command:  models.CommandLaunchApp,
			BundleID: msg.BundleID,
		})
		if err != nil {
			ws.replyError(err)
		}

	default:
		if !models.IsRemoteCommand(msg.Command) {
			ws.reply(models.NewErrorEvent("unknown command: " + msg.Command))
			return
		}

		if err := engine.Command(ctx, models.CommandRequest{Command: models.Command(msg.Command)}); err != nil {
			ws.replyError(err)
		}
	}
}

// deviceRef picks whichever device handle the client sent.
func (*wsSession) deviceRef(msg ClientMessage) string {
	if msg.DeviceID != "" {
		return msg.DeviceID
	}

	return msg.Address
}

// targetDevice resolves the device a catalog command applies to: an
// explicit handle wins, otherwise the connected device.
func (ws *wsSession) targetDevice(msg ClientMessage) (string, bool) {
	if ref := ws.deviceRef(msg); ref != "" {
		return ref, true
	}

	if deviceID, _, ok := ws.server.engine.ActiveDevice(); ok {
		return deviceID, true
	}

	return "", false
}

func (ws *wsSession) reply(ev models.Event) {
	ws.server.engine.Hub().Send(ws.clientID, ev)
}

func (ws *wsSession) replyError(err error) {
	ws.reply(models.NewErrorEvent(err.Error()))
}
