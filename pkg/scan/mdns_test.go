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

package scan

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
)

type fakeResolver struct {
	entries map[string][]*zeroconf.ServiceEntry
	err     error
}

func (f *fakeResolver) Browse(_ context.Context, service, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	if f.err != nil {
		return f.err
	}

	go func() {
		defer close(entries)

		for _, e := range f.entries[service] {
			entries <- e
		}
	}()

	return nil
}

func entry(instance, service, uid string, port int, addr string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, service, mdnsDomain)
	e.Port = port

	if uid != "" {
		e.Text = []string{"model=Streamer", "uid=" + uid}
	}

	if addr != "" {
		e.AddrIPv4 = []net.IP{net.ParseIP(addr)}
	}

	return e
}

func newFakeScanner(f *fakeResolver) *MDNSScanner {
	s := NewMDNSScanner(100*time.Millisecond, logger.NewTestLogger())
	s.newResolver = func() (resolver, error) { return f, nil }

	return s
}

func TestScanMergesServicesByIdentity(t *testing.T) {
	f := &fakeResolver{entries: map[string][]*zeroconf.ServiceEntry{
		serviceControl: {
			entry("Living Room", serviceControl, "uid-abc", 49152, "192.168.1.20"),
		},
		serviceMetadata: {
			entry("Living Room", serviceMetadata, "uid-abc", 49153, "192.168.1.20"),
		},
		serviceMirroring: {
			entry("Living Room", serviceMirroring, "uid-abc", 7000, "192.168.1.20"),
		},
	}}

	results, err := newFakeScanner(f).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "uid-abc", r.UID)
	assert.Equal(t, "Living Room", r.Name)
	assert.Equal(t, "192.168.1.20", r.Address)

	// Services come back in protocol priority order.
	require.Len(t, r.Services, 3)
	assert.Equal(t, models.ProtocolControl, r.Services[0].Protocol)
	assert.Equal(t, models.ProtocolMetadata, r.Services[1].Protocol)
	assert.Equal(t, models.ProtocolMirroring, r.Services[2].Protocol)

	port, ok := r.Port(models.ProtocolMetadata)
	require.True(t, ok)
	assert.Equal(t, 49153, port)
}

func TestScanSeparatesDistinctDevices(t *testing.T) {
	f := &fakeResolver{entries: map[string][]*zeroconf.ServiceEntry{
		serviceControl: {
			entry("Living Room", serviceControl, "uid-abc", 49152, "192.168.1.20"),
			entry("Bedroom", serviceControl, "uid-def", 49152, "192.168.1.30"),
		},
	}}

	results, err := newFakeScanner(f).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Sorted by UID for deterministic reconciliation.
	assert.Equal(t, "uid-abc", results[0].UID)
	assert.Equal(t, "uid-def", results[1].UID)
}

func TestScanFallsBackToInstanceName(t *testing.T) {
	f := &fakeResolver{entries: map[string][]*zeroconf.ServiceEntry{
		serviceMirroring: {
			entry("Old Streamer", serviceMirroring, "", 7000, "192.168.1.40"),
		},
	}}

	results, err := newFakeScanner(f).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Old Streamer", results[0].UID)
}

func TestScanReportsBrowseFailure(t *testing.T) {
	f := &fakeResolver{err: errors.New("no multicast route")}

	_, err := newFakeScanner(f).Scan(context.Background())
	assert.Error(t, err)
}

func TestTxtValue(t *testing.T) {
	texts := []string{"model=Streamer", "uid=uid-abc", "features=0x4A7FDFD5"}

	assert.Equal(t, "uid-abc", txtValue(texts, "uid"))
	assert.Equal(t, "Streamer", txtValue(texts, "model"))
	assert.Empty(t, txtValue(texts, "missing"))
}
