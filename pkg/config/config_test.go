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

package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "castbridge.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFromFileEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8765", cfg.ListenAddr)
	assert.Equal(t, "castbridge.db", cfg.DBPath)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Scan.Interval))
	assert.Equal(t, 2, cfg.Scan.OfflineMisses)
	assert.NotNil(t, cfg.Logging)
}

func TestLoadFromFileOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"listen_addr": ":9000",
		"db_path": "/var/lib/castbridge/devices.db",
		"scan": {"interval": "30s", "timeout": "6s", "offline_misses": 3}
	}`)

	cfg, err := LoadFromFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "/var/lib/castbridge/devices.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Scan.Interval))
	assert.Equal(t, 6*time.Second, time.Duration(cfg.Scan.Timeout))
	assert.Equal(t, 3, cfg.Scan.OfflineMisses)

	// Unspecified sections still fall back to defaults.
	assert.Equal(t, "https://itunes.apple.com/lookup", cfg.Icons.Endpoint)
}

func TestLoadFromFileRejectsBadInterval(t *testing.T) {
	path := writeConfig(t, `{"scan": {"interval": "2s", "timeout": "5s"}}`)

	_, err := LoadFromFile(context.Background(), path)
	assert.Error(t, err)
}

func TestLoadFromFileMissingFile(t *testing.T) {
	_, err := LoadFromFile(context.Background(), "/nonexistent/castbridge.json")
	assert.Error(t, err)
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var parsed Duration
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, d, parsed)
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration

	assert.Error(t, json.Unmarshal([]byte(`"eleventy"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`42`), &d))
}
