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

// Package config loads and validates the castbridge configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/castbridge/pkg/logger"
)

var (
	errNoListenAddr   = errors.New("listen_addr is required")
	errNoDatabasePath = errors.New("db_path is required")
	errBadInterval    = errors.New("scan interval must be greater than the scan timeout")
)

// Duration is a time.Duration that marshals as a human-readable string
// ("30s", "2m") in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)

	return nil
}

// ScanConfig controls the discovery loop.
type ScanConfig struct {
	Interval Duration `json:"interval"`
	Timeout  Duration `json:"timeout"`
	// OfflineMisses is the number of consecutive scans a device may
	// miss before it is reported offline.
	OfflineMisses int `json:"offline_misses"`
}

// IconsConfig controls app icon lookups.
type IconsConfig struct {
	Endpoint string   `json:"endpoint"`
	Country  string   `json:"country"`
	Timeout  Duration `json:"timeout"`
}

// Config is the full castbridge configuration.
type Config struct {
	ListenAddr string         `json:"listen_addr"`
	DBPath     string         `json:"db_path"`
	Scan       ScanConfig     `json:"scan"`
	Icons      IconsConfig    `json:"icons"`
	Logging    *logger.Config `json:"logging,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr: ":8765",
		DBPath:     "castbridge.db",
		Scan: ScanConfig{
			Interval:      Duration(10 * time.Second),
			Timeout:       Duration(4 * time.Second),
			OfflineMisses: 2,
		},
		Icons: IconsConfig{
			Endpoint: "https://itunes.apple.com/lookup",
			Country:  "us",
			Timeout:  Duration(5 * time.Second),
		},
	}
}

// Normalize fills zero-valued fields with their defaults.
func (c *Config) Normalize() {
	def := Default()

	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}

	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}

	if c.Scan.Interval == 0 {
		c.Scan.Interval = def.Scan.Interval
	}

	if c.Scan.Timeout == 0 {
		c.Scan.Timeout = def.Scan.Timeout
	}

	if c.Scan.OfflineMisses == 0 {
		c.Scan.OfflineMisses = def.Scan.OfflineMisses
	}

	if c.Icons.Endpoint == "" {
		c.Icons.Endpoint = def.Icons.Endpoint
	}

	if c.Icons.Country == "" {
		c.Icons.Country = def.Icons.Country
	}

	if c.Icons.Timeout == 0 {
		c.Icons.Timeout = def.Icons.Timeout
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}
}

// Validate checks the configuration after normalization.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errNoListenAddr
	}

	if c.DBPath == "" {
		return errNoDatabasePath
	}

	if c.Scan.Timeout >= c.Scan.Interval {
		return errBadInterval
	}

	return nil
}
