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

// Package core wires discovery, pairing, the active session and the
// event hub into one engine and exposes the operations clients invoke.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/castbridge/pkg/config"
	"github.com/carverauto/castbridge/pkg/hub"
	"github.com/carverauto/castbridge/pkg/icons"
	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/pairing"
	"github.com/carverauto/castbridge/pkg/protocol"
	"github.com/carverauto/castbridge/pkg/protocol/airplay"
	"github.com/carverauto/castbridge/pkg/protocol/companion"
	"github.com/carverauto/castbridge/pkg/protocol/mediaremote"
	"github.com/carverauto/castbridge/pkg/registry"
	"github.com/carverauto/castbridge/pkg/scan"
	"github.com/carverauto/castbridge/pkg/session"
	"github.com/carverauto/castbridge/pkg/store"
)

// Engine owns the discovery loop and routes client operations to the
// pairing orchestrator and session manager.
type Engine struct {
	cfg     *config.Config
	scanner scan.Scanner
	store   store.Store
	reg     *registry.DeviceRegistry
	hub     *hub.Hub
	pairing *pairing.Orchestrator
	session *session.Manager
	icons   *icons.Client
	logger  logger.Logger

	// scanMu serializes scan passes so a client-triggered scan and the
	// periodic ticker never reconcile concurrently.
	scanMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine builds the engine around injected scanner and store so tests
// can substitute fakes.
func NewEngine(cfg *config.Config, scanner scan.Scanner, st store.Store, log logger.Logger) *Engine {
	reg := registry.NewDeviceRegistry(cfg.Scan.OfflineMisses, log)
	h := hub.New(log)

	adapters := []protocol.Adapter{
		companion.New(log),
		mediaremote.New(log),
		airplay.New(log),
	}

	e := &Engine{
		cfg:     cfg,
		scanner: scanner,
		store:   st,
		reg:     reg,
		hub:     h,
		pairing: pairing.NewOrchestrator(adapters, st, reg, h, log),
		session: session.NewManager(adapters, st, reg, h, log),
		icons:   icons.NewClient(cfg.Icons.Endpoint, cfg.Icons.Country, time.Duration(cfg.Icons.Timeout), log),
		logger:  log,
		done:    make(chan struct{}),
	}

	h.SetSnapshot(e.snapshot)

	return e
}

// Hub exposes the event hub for the transport layer.
func (e *Engine) Hub() *hub.Hub {
	return e.hub
}

// Start seeds the registry from persisted devices and runs the periodic
// discovery loop until Stop.
func (e *Engine) Start(ctx context.Context) error {
	stored, err := e.store.LoadDevices(ctx)
	if err != nil {
		return fmt.Errorf("load persisted devices: %w", err)
	}

	seeded := make([]*models.Device, 0, len(stored))
	for i := range stored {
		seeded = append(seeded, stored[i].Device())
	}

	e.reg.Seed(seeded)

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	go e.discoveryLoop(loopCtx)

	e.logger.Info().
		Int("seeded_devices", len(seeded)).
		Dur("interval", time.Duration(e.cfg.Scan.Interval)).
		Msg("engine started")

	return nil
}

// Stop shuts the engine down: the discovery loop, pairing attempts, the
// active session, all subscribers and the store.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}

	e.pairing.CancelAll()
	e.session.Disconnect()
	e.hub.Shutdown()

	if err := e.store.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("store close failed")
	}

	e.logger.Info().Msg("engine stopped")
}

func (e *Engine) discoveryLoop(ctx context.Context) {
	defer close(e.done)

	e.scanOnce(ctx)

	ticker := time.NewTicker(time.Duration(e.cfg.Scan.Interval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scanOnce(ctx)
		}
	}
}

// scanOnce runs one scan pass and reconciles it into the registry. A
// pass always ends with a discovery_results broadcast, changed or not,
// so clients get a liveness heartbeat. A failed scan does not advance
// the offline debounce: transient resolver errors must not mark every
// device missing.
func (e *Engine) scanOnce(ctx context.Context) {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	scanCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.Scan.Timeout))
	defer cancel()

	results, err := e.scanner.Scan(scanCtx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("discovery scan failed")
		e.hub.Broadcast(models.NewDiscoveryEvent(e.reg.Snapshot()))

		return
	}

	cs := e.reg.Reconcile(results)

	for _, id := range cs.WentOffline {
		e.session.HandleOffline(id)
	}

	e.hub.Broadcast(models.NewDiscoveryEvent(e.reg.Snapshot()))
}

// Scan triggers an immediate discovery pass and returns the resulting
// device snapshot. The pass also broadcasts, so every subscriber sees
// the same refresh.
func (e *Engine) Scan(ctx context.Context) []models.DeviceView {
	e.scanOnce(ctx)
	return e.reg.Snapshot()
}

// Devices returns the current registry snapshot without scanning.
func (e *Engine) Devices() []models.DeviceView {
	return e.reg.Snapshot()
}

// PairedDevices lists persisted devices regardless of reachability.
// Online is reported as unknown: the store has no liveness opinion.
func (e *Engine) PairedDevices(ctx context.Context) ([]models.DeviceView, error) {
	stored, err := e.store.LoadDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persisted devices: %w", err)
	}

	views := make([]models.DeviceView, 0, len(stored))
	for i := range stored {
		views = append(views, stored[i].Device().View())
	}

	return views, nil
}

// Connect opens a session to a device addressed by id or address.
func (e *Engine) Connect(ctx context.Context, ref string) error {
	dev, ok := e.resolve(ref)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrUnknownDevice, ref)
	}

	return e.session.Connect(ctx, dev.ID)
}

// Disconnect closes the active session, if any.
func (e *Engine) Disconnect() {
	e.session.Disconnect()
}

// StartPairing begins a chained pairing attempt and returns the device
// id the attempt is keyed by.
func (e *Engine) StartPairing(ctx context.Context, ref string, only *models.Protocol) (string, error) {
	dev, ok := e.resolve(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", session.ErrUnknownDevice, ref)
	}

	if err := e.pairing.Start(ctx, dev, only); err != nil {
		return "", err
	}

	return dev.ID, nil
}

// SubmitPIN forwards a PIN to the pairing attempt for the device.
func (e *Engine) SubmitPIN(ctx context.Context, deviceID, pin string) error {
	return e.pairing.SubmitPIN(ctx, deviceID, pin)
}

// CancelPairing aborts the pairing attempt for the device.
func (e *Engine) CancelPairing(deviceID string) error {
	return e.pairing.Cancel(deviceID)
}

// DeleteDevice removes a device's credentials and favorites. An active
// session to it is closed first; the device may reappear unpaired on the
// next scan.
func (e *Engine) DeleteDevice(ctx context.Context, ref string) error {
	dev, ok := e.resolve(ref)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrUnknownDevice, ref)
	}

	if id, _, active := e.session.ActiveDevice(); active && id == dev.ID {
		e.session.Disconnect()
	}

	_ = e.pairing.Cancel(dev.ID)

	if err := e.store.DeleteDevice(ctx, dev.ID); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}

	e.reg.Remove(dev.ID)
	e.hub.Broadcast(models.NewStatusEvent(fmt.Sprintf("Removed %s", dev.Name)))
	e.hub.Broadcast(models.NewDiscoveryEvent(e.reg.Snapshot()))

	return nil
}

// SetFavorite sets the favorite flag for an app on a device to an
// explicit state and returns it. Idempotent in both directions. The icon
// URL is resolved when favoriting without one; lookup failures leave it
// empty.
func (e *Engine) SetFavorite(ctx context.Context, ref, bundleID, name, iconURL string, isFavorite bool) (bool, error) {
	deviceID := e.resolveID(ref)

	if !isFavorite {
		if err := e.store.SetFavorite(ctx, deviceID, bundleID, name, "", false); err != nil {
			return false, fmt.Errorf("remove favorite: %w", err)
		}

		return false, nil
	}

	if iconURL == "" {
		iconURL = e.icons.IconURL(ctx, bundleID)
	}

	if err := e.store.SetFavorite(ctx, deviceID, bundleID, name, iconURL, true); err != nil {
		return false, fmt.Errorf("save favorite: %w", err)
	}

	return true, nil
}

// ToggleFavorite flips the favorite flag for an app based on its stored
// state, for clients that don't send an explicit one.
func (e *Engine) ToggleFavorite(ctx context.Context, ref, bundleID, name string) (bool, error) {
	deviceID := e.resolveID(ref)

	favorites, err := e.store.LoadFavorites(ctx, deviceID)
	if err != nil {
		return false, fmt.Errorf("load favorites: %w", err)
	}

	for _, fav := range favorites {
		if fav.BundleID == bundleID {
			return e.SetFavorite(ctx, deviceID, bundleID, name, "", false)
		}
	}

	return e.SetFavorite(ctx, deviceID, bundleID, name, "", true)
}

// Apps returns the app catalog and favorites for a device, filling in
// icon URLs the device itself does not provide.
func (e *Engine) Apps(ctx context.Context, ref string) ([]models.AppInfo, []models.FavoriteApp, error) {
	apps, favorites, err := e.session.RefreshApps(ctx, e.resolveID(ref))
	if err != nil {
		return nil, nil, err
	}

	for i := range apps {
		if apps[i].IconURL == "" {
			apps[i].IconURL = e.icons.IconURL(ctx, apps[i].BundleID)
		}
	}

	return apps, favorites, nil
}

// Command dispatches a remote command to the active session.
func (e *Engine) Command(ctx context.Context, req models.CommandRequest) error {
	return e.session.Dispatch(ctx, req)
}

// ActiveDevice reports the connected device, if any.
func (e *Engine) ActiveDevice() (deviceID, name string, ok bool) {
	return e.session.ActiveDevice()
}

// resolve accepts a device id or an address, in that order. Commands
// address devices by whichever handle the client holds.
func (e *Engine) resolve(ref string) (*models.Device, bool) {
	if dev, ok := e.reg.Get(ref); ok {
		return dev, true
	}

	return e.reg.GetByAddress(ref)
}

// resolveID maps a device handle to its id, passing it through unchanged
// when the registry has no entry for it.
func (e *Engine) resolveID(ref string) string {
	if dev, ok := e.resolve(ref); ok {
		return dev.ID
	}

	return ref
}

// snapshot is the authoritative state replayed to a freshly subscribed
// client: the device list, the session status and the latest playback
// state when a session is active.
func (e *Engine) snapshot() []models.Event {
	events := []models.Event{models.NewDiscoveryEvent(e.reg.Snapshot())}

	if _, name, ok := e.session.ActiveDevice(); ok {
		events = append(events, models.NewStatusEvent(fmt.Sprintf("Connected to %s", name)))

		if np, has := e.session.NowPlayingSnapshot(); has {
			events = append(events, models.NewNowPlayingEvent(np))
		}
	}

	return events
}
