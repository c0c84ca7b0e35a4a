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

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/protocol"
	"github.com/carverauto/castbridge/pkg/registry"
	"github.com/carverauto/castbridge/pkg/scan"
	"github.com/carverauto/castbridge/pkg/store"
)

type credStore struct {
	mu        sync.Mutex
	creds     map[string]map[models.Protocol]string
	favorites map[string][]models.FavoriteApp
}

func newCredStore() *credStore {
	return &credStore{
		creds:     make(map[string]map[models.Protocol]string),
		favorites: make(map[string][]models.FavoriteApp),
	}
}

func (s *credStore) LoadDevices(context.Context) ([]store.StoredDevice, error) { return nil, nil }

func (s *credStore) SaveProtocolCredential(_ context.Context, deviceID string, proto models.Protocol, _, _, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds[deviceID] == nil {
		s.creds[deviceID] = make(map[models.Protocol]string)
	}

	s.creds[deviceID][proto] = credential

	return nil
}

func (s *credStore) Credentials(_ context.Context, deviceID string) (map[models.Protocol]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.Protocol]string, len(s.creds[deviceID]))
	for p, c := range s.creds[deviceID] {
		out[p] = c
	}

	return out, nil
}

func (s *credStore) DeleteDevice(context.Context, string) error { return nil }

func (s *credStore) LoadFavorites(_ context.Context, deviceID string) ([]models.FavoriteApp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]models.FavoriteApp(nil), s.favorites[deviceID]...), nil
}

func (s *credStore) SetFavorite(context.Context, string, string, string, string, bool) error {
	return nil
}

func (s *credStore) Close() error { return nil }

type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) Broadcast(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofType(t models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Event

	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}

	return out
}

func (r *eventRecorder) hasStatus(message string) bool {
	for _, ev := range r.ofType(models.EventStatus) {
		if ev.Message == message {
			return true
		}
	}

	return false
}

type fakeControl struct {
	mu       sync.Mutex
	sent     []models.CommandRequest
	power    models.PowerState
	powerErr error
	sendErr  map[models.Command]error
	apps     []models.AppInfo
	closed   bool
}

func (*fakeControl) Protocol() models.Protocol { return models.ProtocolControl }

func (f *fakeControl) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

func (f *fakeControl) Send(_ context.Context, req models.CommandRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.sendErr[req.Command]; err != nil {
		return err
	}

	f.sent = append(f.sent, req)

	return nil
}

func (f *fakeControl) PowerState(context.Context) (models.PowerState, error) {
	return f.power, f.powerErr
}

func (f *fakeControl) Apps(context.Context) ([]models.AppInfo, error) {
	return append([]models.AppInfo(nil), f.apps...), nil
}

func (f *fakeControl) LaunchApp(ctx context.Context, bundleID string) error {
	return f.Send(ctx, models.CommandRequest{Command: models.CommandLaunchApp, BundleID: bundleID})
}

func (f *fakeControl) sentCommands() []models.Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Command, 0, len(f.sent))
	for _, req := range f.sent {
		out = append(out, req.Command)
	}

	return out
}

type fakeMetadata struct {
	updates    chan models.NowPlaying
	playing    models.NowPlaying
	playingErr error
	artwork    string
	artworkErr error

	mu           sync.Mutex
	artworkCalls int
	closeOnce    sync.Once
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{
		updates:    make(chan models.NowPlaying, 16),
		playingErr: errors.New("not playing"),
	}
}

func (*fakeMetadata) Protocol() models.Protocol { return models.ProtocolMetadata }

func (f *fakeMetadata) Close() error {
	f.closeOnce.Do(func() { close(f.updates) })
	return nil
}

func (f *fakeMetadata) Updates() <-chan models.NowPlaying { return f.updates }

func (f *fakeMetadata) Playing(context.Context) (models.NowPlaying, error) {
	return f.playing, f.playingErr
}

func (f *fakeMetadata) Artwork(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.artworkCalls++

	return f.artwork, f.artworkErr
}

func (f *fakeMetadata) artworkFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.artworkCalls
}

type sessionAdapter struct {
	proto   models.Protocol
	session protocol.Session
	openErr error
}

func (a *sessionAdapter) Protocol() models.Protocol { return a.proto }

func (a *sessionAdapter) StartPairing(context.Context, protocol.Target) (protocol.PairingTransaction, error) {
	return nil, protocol.ErrDeviceUnreachable
}

func (a *sessionAdapter) Open(context.Context, protocol.Target, string) (protocol.Session, error) {
	if a.openErr != nil {
		return nil, a.openErr
	}

	return a.session, nil
}

type fixture struct {
	manager  *Manager
	registry *registry.DeviceRegistry
	store    *credStore
	events   *eventRecorder
	control  *fakeControl
	metadata *fakeMetadata
}

const testDeviceID = "uid-den"

// newFixture builds a manager around one online device paired for
// control and metadata.
func newFixture(t *testing.T, controlOpenErr, metadataOpenErr error) *fixture {
	t.Helper()

	reg := registry.NewDeviceRegistry(2, logger.NewTestLogger())
	reg.Reconcile([]scan.Result{{
		UID:     testDeviceID,
		Name:    "Den",
		Address: "192.168.1.50",
		Services: []scan.ServiceRecord{
			{Protocol: models.ProtocolControl, Port: 49152},
			{Protocol: models.ProtocolMetadata, Port: 49153},
		},
	}})
	reg.SetPaired(testDeviceID, models.ProtocolControl)
	reg.SetPaired(testDeviceID, models.ProtocolMetadata)

	st := newCredStore()
	require.NoError(t, st.SaveProtocolCredential(context.Background(), testDeviceID, models.ProtocolControl, "Den", "192.168.1.50", "cred-c"))
	require.NoError(t, st.SaveProtocolCredential(context.Background(), testDeviceID, models.ProtocolMetadata, "Den", "192.168.1.50", "cred-m"))

	control := &fakeControl{power: models.PowerStateOn}
	metadata := newFakeMetadata()
	events := &eventRecorder{}

	adapters := []protocol.Adapter{
		&sessionAdapter{proto: models.ProtocolControl, session: control, openErr: controlOpenErr},
		&sessionAdapter{proto: models.ProtocolMetadata, session: metadata, openErr: metadataOpenErr},
	}

	return &fixture{
		manager:  NewManager(adapters, st, reg, events, logger.NewTestLogger()),
		registry: reg,
		store:    st,
		events:   events,
		control:  control,
		metadata: metadata,
	}
}

func TestConnectOpensPairedProtocols(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	id, name, ok := f.manager.ActiveDevice()
	require.True(t, ok)
	assert.Equal(t, testDeviceID, id)
	assert.Equal(t, "Den", name)
	assert.True(t, f.events.hasStatus("Connected to Den"))

	f.manager.Disconnect()

	_, _, ok = f.manager.ActiveDevice()
	assert.False(t, ok)
	assert.True(t, f.events.hasStatus("Disconnected from Den"))
	assert.True(t, f.control.closed)
}

func TestConnectIsIdempotentForSameDevice(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))
	assert.NoError(t, f.manager.Connect(context.Background(), testDeviceID))
}

func TestConnectRejectsUnknownAndUnpaired(t *testing.T) {
	f := newFixture(t, nil, nil)

	err := f.manager.Connect(context.Background(), "uid-nope")
	assert.ErrorIs(t, err, ErrUnknownDevice)

	f.registry.Reconcile([]scan.Result{
		{UID: testDeviceID, Name: "Den", Address: "192.168.1.50"},
		{UID: "uid-raw", Name: "Raw", Address: "192.168.1.51",
			Services: []scan.ServiceRecord{{Protocol: models.ProtocolControl, Port: 49152}}},
	})

	err = f.manager.Connect(context.Background(), "uid-raw")
	assert.ErrorIs(t, err, ErrNotPaired)
}

func TestConnectRejectsSecondDevice(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.registry.Reconcile([]scan.Result{
		{UID: testDeviceID, Name: "Den", Address: "192.168.1.50",
			Services: []scan.ServiceRecord{{Protocol: models.ProtocolControl, Port: 49152}}},
		{UID: "uid-two", Name: "Two", Address: "192.168.1.52",
			Services: []scan.ServiceRecord{{Protocol: models.ProtocolControl, Port: 49152}}},
	})
	f.registry.SetPaired("uid-two", models.ProtocolControl)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	err := f.manager.Connect(context.Background(), "uid-two")
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestConnectRejectsOfflineDevice(t *testing.T) {
	f := newFixture(t, nil, nil)

	// Two missed scans take the device offline.
	f.registry.Reconcile(nil)
	f.registry.Reconcile(nil)

	err := f.manager.Connect(context.Background(), testDeviceID)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestConnectDegradesWhenOneAdapterFails(t *testing.T) {
	f := newFixture(t, nil, protocol.ErrDeviceUnreachable)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	require.NoError(t, f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandSelect}))
	assert.Equal(t, []models.Command{models.CommandSelect}, f.control.sentCommands())
}

func TestConnectFailsWhenEveryAdapterFails(t *testing.T) {
	f := newFixture(t, protocol.ErrDeviceUnreachable, protocol.ErrDeviceUnreachable)

	err := f.manager.Connect(context.Background(), testDeviceID)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestDispatchWithoutConnection(t *testing.T) {
	f := newFixture(t, nil, nil)

	err := f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandSelect})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDispatchWithoutControlAdapter(t *testing.T) {
	f := newFixture(t, protocol.ErrDeviceUnreachable, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	err := f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandSelect})
	assert.ErrorIs(t, err, protocol.ErrUnsupportedCommand)
}

func TestPowerToggleOnDeviceShowsControlCenter(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.control.power = models.PowerStateOn

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))
	require.NoError(t, f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandPowerToggle}))

	assert.Equal(t, []models.Command{models.CommandControlCenter}, f.control.sentCommands())
}

func TestPowerToggleFallsBackToPowerOff(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.control.power = models.PowerStateOn
	f.control.sendErr = map[models.Command]error{
		models.CommandControlCenter: errors.New("overlay unavailable"),
	}

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))
	require.NoError(t, f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandPowerToggle}))

	assert.Equal(t, []models.Command{models.CommandPowerOff}, f.control.sentCommands())
}

func TestPowerToggleWakesSleepingDevice(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.control.power = models.PowerStateOff

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))
	require.NoError(t, f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandPowerToggle}))

	assert.Equal(t, []models.Command{models.CommandPowerOn}, f.control.sentCommands())
}

func TestVolumeCommandIsAsynchronous(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))
	require.NoError(t, f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandVolumeUp}))

	assert.Eventually(t, func() bool {
		cmds := f.control.sentCommands()
		return len(cmds) == 1 && cmds[0] == models.CommandVolumeUp
	}, 2*time.Second, 10*time.Millisecond)
}

func TestVolumeCommandKeepsDispatchOrder(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	// The volume ack is not awaited, but a command issued right after it
	// must still reach the adapter second.
	require.NoError(t, f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandVolumeUp}))
	require.NoError(t, f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandSelect}))

	assert.Equal(t, []models.Command{models.CommandVolumeUp, models.CommandSelect}, f.control.sentCommands())
}

func TestInitialFetchNeverRewindsPushedState(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	f.metadata.updates <- models.NowPlaying{Title: "Fresh", DeviceState: "playing"}

	assert.Eventually(t, func() bool {
		return len(f.events.ofType(models.EventNowPlaying)) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	// A pulled snapshot finishing after the first push is stale by
	// definition and must be dropped, not broadcast.
	a := f.manager.activeSession()
	require.NotNil(t, a)

	f.manager.publishNowPlaying(a, f.metadata, models.NowPlaying{Title: "Stale", DeviceState: "paused"}, false)

	np, ok := f.manager.NowPlayingSnapshot()
	require.True(t, ok)
	assert.Equal(t, "Fresh", np.Title)

	for _, ev := range f.events.ofType(models.EventNowPlaying) {
		assert.NotEqual(t, "Stale", ev.Title)
	}
}

func TestHandleOfflineTearsDownSession(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	f.manager.HandleOffline(testDeviceID)

	_, _, ok := f.manager.ActiveDevice()
	assert.False(t, ok)
	assert.True(t, f.events.hasStatus("Disconnected from Den (device offline)"))

	err := f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandSelect})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestHandleOfflineIgnoresOtherDevices(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	f.manager.HandleOffline("uid-other")

	_, _, ok := f.manager.ActiveDevice()
	assert.True(t, ok)
}

func TestMetadataStreamEnrichment(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.metadata.artwork = "data:image/jpeg;base64,QUJD"

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	f.metadata.updates <- models.NowPlaying{
		Title:       "Severance",
		App:         "TV",
		DeviceState: "playing",
		ArtworkID:   "art-1",
	}

	assert.Eventually(t, func() bool {
		return len(f.events.ofType(models.EventNowPlaying)) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	ev := f.events.ofType(models.EventNowPlaying)[0]
	assert.Equal(t, "Severance", ev.Title)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", ev.Artwork)
	assert.True(t, ev.HasArtwork)
	// Artist falls back to the device name when the stream has none.
	assert.Equal(t, "Den", ev.Artist)

	// Same artwork id: the cached image is reused, no second fetch.
	f.metadata.updates <- models.NowPlaying{
		Title:       "Severance",
		App:         "TV",
		DeviceState: "paused",
		ArtworkID:   "art-1",
	}

	assert.Eventually(t, func() bool {
		return len(f.events.ofType(models.EventNowPlaying)) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	second := f.events.ofType(models.EventNowPlaying)[1]
	assert.Equal(t, "data:image/jpeg;base64,QUJD", second.Artwork)
	assert.Equal(t, 1, f.metadata.artworkFetches())

	np, ok := f.manager.NowPlayingSnapshot()
	require.True(t, ok)
	assert.Equal(t, "paused", np.DeviceState)
}

func TestMetadataTitleFallbacks(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	f.metadata.updates <- models.NowPlaying{App: "Netflix"}
	f.metadata.updates <- models.NowPlaying{}

	assert.Eventually(t, func() bool {
		return len(f.events.ofType(models.EventNowPlaying)) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	got := f.events.ofType(models.EventNowPlaying)
	assert.Equal(t, "Watching Netflix", got[0].Title)
	assert.Equal(t, "Not Playing", got[1].Title)
	assert.False(t, got[0].HasArtwork)
}

func TestMetadataLinkLossDegradesSession(t *testing.T) {
	f := newFixture(t, nil, nil)

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	// The metadata stream dies; control keeps working.
	require.NoError(t, f.metadata.Close())

	assert.Eventually(t, func() bool {
		return len(f.events.ofType(models.EventError)) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	_, _, ok := f.manager.ActiveDevice()
	assert.True(t, ok)

	assert.NoError(t, f.manager.Dispatch(context.Background(), models.CommandRequest{Command: models.CommandSelect}))

	_, has := f.manager.NowPlayingSnapshot()
	assert.False(t, has)
}

func TestRefreshAppsJoinsFavorites(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.control.apps = []models.AppInfo{
		{BundleID: "com.netflix.Netflix", Name: "Netflix"},
		{BundleID: "com.apple.TVWatchList", Name: "TV"},
	}
	f.store.favorites[testDeviceID] = []models.FavoriteApp{
		{BundleID: "com.netflix.Netflix", Name: "Netflix", IconURL: "https://icons.example/netflix.png"},
	}

	require.NoError(t, f.manager.Connect(context.Background(), testDeviceID))

	apps, favorites, err := f.manager.RefreshApps(context.Background(), testDeviceID)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	require.Len(t, favorites, 1)

	assert.True(t, apps[0].IsFavorite)
	assert.Equal(t, "https://icons.example/netflix.png", apps[0].IconURL)
	assert.False(t, apps[1].IsFavorite)
}

func TestRefreshAppsWithoutSessionReturnsFavoritesOnly(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.store.favorites[testDeviceID] = []models.FavoriteApp{
		{BundleID: "com.netflix.Netflix", Name: "Netflix"},
	}

	apps, favorites, err := f.manager.RefreshApps(context.Background(), testDeviceID)
	require.NoError(t, err)
	assert.Nil(t, apps)
	assert.Len(t, favorites, 1)
}
