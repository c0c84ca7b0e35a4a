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

// Package icons resolves app icon URLs from a store lookup endpoint.
// Lookups are best-effort: a failed or empty lookup yields an empty URL,
// never an error the caller has to handle beyond logging.
package icons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/carverauto/castbridge/pkg/logger"
)

var errLookupFailed = errors.New("icon lookup failed")

// Client queries the lookup endpoint and caches results by bundle ID.
// Negative results are cached too so an unlisted app is looked up once.
type Client struct {
	endpoint string
	country  string
	client   *http.Client
	logger   logger.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewClient creates an icon lookup client.
func NewClient(endpoint, country string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		country:  country,
		client:   &http.Client{Timeout: timeout},
		logger:   log,
		cache:    make(map[string]string),
	}
}

type lookupResponse struct {
	Results []struct {
		ArtworkURL100 string `json:"artworkUrl100"`
		ArtworkURL512 string `json:"artworkUrl512"`
	} `json:"results"`
}

// IconURL resolves the icon URL for a bundle ID. Returns an empty string
// when the app has no listing.
func (c *Client) IconURL(ctx context.Context, bundleID string) string {
	if bundleID == "" {
		return ""
	}

	c.mu.Lock()
	cached, ok := c.cache[bundleID]
	c.mu.Unlock()

	if ok {
		return cached
	}

	iconURL, err := c.lookup(ctx, bundleID)
	if err != nil {
		c.logger.Debug().Err(err).Str("bundle_id", bundleID).Msg("icon lookup failed")
		return ""
	}

	c.mu.Lock()
	c.cache[bundleID] = iconURL
	c.mu.Unlock()

	return iconURL
}

func (c *Client) lookup(ctx context.Context, bundleID string) (string, error) {
	q := url.Values{}
	q.Set("bundleId", bundleID)
	q.Set("country", c.country)
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errLookupFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", errLookupFailed, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode: %w", errLookupFailed, err)
	}

	if len(body.Results) == 0 {
		return "", nil
	}

	if body.Results[0].ArtworkURL512 != "" {
		return body.Results[0].ArtworkURL512, nil
	}

	return body.Results[0].ArtworkURL100, nil
}
