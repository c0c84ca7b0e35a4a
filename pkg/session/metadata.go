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

	"github.com/carverauto/castbridge/pkg/models"
	"github.com/carverauto/castbridge/pkg/protocol"
)

// streamMetadata consumes the pushed now-playing stream. Every update
// overwrites the cached snapshot and is forwarded immediately; there is
// no buffering beyond latest-wins. The stream closing means the metadata
// link dropped.
func (m *Manager) streamMetadata(a *active, ms protocol.MetadataSession) {
	for np := range ms.Updates() {
		m.publishNowPlaying(a, ms, np, true)
	}

	m.handleAdapterLoss(a, models.ProtocolMetadata)
}

// initialFetch pulls the playback state right after connecting so
// clients see the current state before the first push arrives.
func (m *Manager) initialFetch(a *active, ms protocol.MetadataSession) {
	ctx, cancel := context.WithTimeout(context.Background(), initialFetchTimeout)
	defer cancel()

	np, err := ms.Playing(ctx)
	if err != nil {
		m.logger.Debug().Err(err).Str("device_id", a.deviceID).Msg("initial playing fetch failed")
		return
	}

	m.publishNowPlaying(a, ms, np, false)
}

// publishNowPlaying enriches a raw snapshot and broadcasts it. Artwork
// is fetched only when its identity changed; artwork failures never fail
// the update. A pulled snapshot losing the race against the first push
// is discarded so the stream never rewinds.
func (m *Manager) publishNowPlaying(a *active, ms protocol.MetadataSession, np models.NowPlaying, fromPush bool) {
	a.stateMu.Lock()

	if fromPush {
		a.pushSeen = true
	} else if a.pushSeen {
		a.stateMu.Unlock()
		return
	}

	shouldFetch := np.ArtworkID != a.lastArtworkID ||
		(np.ArtworkID == "" && np.Title != a.lastTitle)

	if shouldFetch && np.Title != "" {
		a.stateMu.Unlock()

		artCtx, cancel := context.WithTimeout(context.Background(), artworkTimeout)
		artwork, err := ms.Artwork(artCtx)
		cancel()

		a.stateMu.Lock()

		// The lock was dropped for the fetch; a push may have landed.
		if !fromPush && a.pushSeen {
			a.stateMu.Unlock()
			return
		}

		if err != nil {
			m.logger.Debug().Err(err).Str("device_id", a.deviceID).Msg("artwork fetch failed")
			artwork = ""
		}

		a.artwork = artwork
		a.lastArtworkID = np.ArtworkID
		a.lastTitle = np.Title
	}

	np.Artwork = a.artwork
	np.HasArtwork = np.Artwork != ""

	// Title fallback: a foreground app without playback reads as
	// "Watching <app>", everything else as "Not Playing".
	if np.Title == "" {
		if np.App != "" {
			np.Title = "Watching " + np.App
		} else {
			np.Title = "Not Playing"
		}
	}

	if np.Artist == "" {
		if np.Album != "" {
			np.Artist = np.Album
		} else {
			np.Artist = a.name
		}
	}

	if np.DeviceState == "" {
		np.DeviceState = "idle"
	}

	a.nowPlaying = &np
	a.stateMu.Unlock()

	m.events.Broadcast(models.NewNowPlayingEvent(np))
}

// RefreshApps joins the control adapter's raw app list with the
// persisted favorites for the device. Pull-based: the device protocol
// does not push catalog changes. Without an open control session only
// the favorites are returned.
func (m *Manager) RefreshApps(ctx context.Context, deviceID string) ([]models.AppInfo, []models.FavoriteApp, error) {
	favorites, err := m.store.LoadFavorites(ctx, deviceID)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	a := m.current
	var control protocol.CommandSession
	if a != nil && a.deviceID == deviceID {
		control = a.control
	}
	m.mu.Unlock()

	if control == nil {
		return nil, favorites, nil
	}

	apps, err := control.Apps(ctx)
	if err != nil {
		return nil, favorites, err
	}

	favByBundle := make(map[string]models.FavoriteApp, len(favorites))
	for _, fav := range favorites {
		favByBundle[fav.BundleID] = fav
	}

	for i := range apps {
		if fav, ok := favByBundle[apps[i].BundleID]; ok {
			apps[i].IsFavorite = true

			if apps[i].IconURL == "" {
				apps[i].IconURL = fav.IconURL
			}
		}
	}

	a.stateMu.Lock()
	a.apps = apps
	a.stateMu.Unlock()

	return apps, favorites, nil
}
