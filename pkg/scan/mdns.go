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
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/carverauto/castbridge/pkg/logger"
	"github.com/carverauto/castbridge/pkg/models"
)

const (
	mdnsDomain = "local."

	serviceControl   = "_companion-link._tcp"
	serviceMetadata  = "_mediaremotetv._tcp"
	serviceMirroring = "_airplay._tcp"

	defaultScanTimeout = 5 * time.Second
)

// serviceProtocols maps advertised mDNS service types to protocols.
var serviceProtocols = map[string]models.Protocol{
	serviceControl:   models.ProtocolControl,
	serviceMetadata:  models.ProtocolMetadata,
	serviceMirroring: models.ProtocolMirroring,
}

// MDNSScanner browses the three device service types and merges entries
// that carry the same identity key.
type MDNSScanner struct {
	timeout time.Duration
	logger  logger.Logger

	// newResolver is swappable for tests.
	newResolver func() (resolver, error)
}

type resolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// NewMDNSScanner creates a scanner with the given per-pass timeout.
func NewMDNSScanner(timeout time.Duration, log logger.Logger) *MDNSScanner {
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}

	return &MDNSScanner{
		timeout: timeout,
		logger:  log,
		newResolver: func() (resolver, error) {
			return zeroconf.NewResolver(nil)
		},
	}
}

// Scan browses all service types concurrently for the configured timeout
// and merges the entries by device identity.
func (s *MDNSScanner) Scan(ctx context.Context) ([]Result, error) {
	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		merged  = make(map[string]*Result)
		wg      sync.WaitGroup
		firstErr error
	)

	for svc, proto := range serviceProtocols {
		wg.Add(1)

		go func(svc string, proto models.Protocol) {
			defer wg.Done()

			entries := make(chan *zeroconf.ServiceEntry, 32)

			go func() {
				for entry := range entries {
					mu.Lock()
					s.mergeEntry(merged, entry, proto)
					mu.Unlock()
				}
			}()

			res, err := s.newResolver()
			if err == nil {
				err = res.Browse(scanCtx, svc, mdnsDomain, entries)
			}

			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("browse %s: %w", svc, err)
				}
				mu.Unlock()

				close(entries)

				return
			}

			<-scanCtx.Done()
		}(svc, proto)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	if len(merged) == 0 && firstErr != nil {
		return nil, firstErr
	}

	results := make([]Result, 0, len(merged))
	for _, r := range merged {
		sortServices(r.Services)
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].UID < results[j].UID })

	s.logger.Debug().Int("devices", len(results)).Msg("scan pass complete")

	return results, nil
}

// mergeEntry folds one mDNS entry into the per-device result map.
func (s *MDNSScanner) mergeEntry(merged map[string]*Result, entry *zeroconf.ServiceEntry, proto models.Protocol) {
	uid := txtValue(entry.Text, "uid")
	if uid == "" {
		// Devices that do not publish an identity key fall back to the
		// instance name, which at least survives address rotation.
		uid = entry.Instance
	}

	if uid == "" {
		return
	}

	addr := ""
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0].String()
	}

	r, ok := merged[uid]
	if !ok {
		r = &Result{UID: uid, Name: entry.Instance, Address: addr}
		merged[uid] = r
	}

	if r.Name == "" {
		r.Name = entry.Instance
	}

	if r.Address == "" {
		r.Address = addr
	}

	for _, svc := range r.Services {
		if svc.Protocol == proto {
			return
		}
	}

	r.Services = append(r.Services, ServiceRecord{Protocol: proto, Port: entry.Port})
}

func sortServices(services []ServiceRecord) {
	order := make(map[models.Protocol]int, len(models.ProtocolPriority))
	for i, p := range models.ProtocolPriority {
		order[p] = i
	}

	sort.Slice(services, func(i, j int) bool {
		return order[services[i].Protocol] < order[services[j].Protocol]
	})
}

// txtValue extracts a key=value pair from mDNS TXT records.
func txtValue(texts []string, key string) string {
	prefix := key + "="

	for _, txt := range texts {
		if strings.HasPrefix(txt, prefix) {
			return strings.TrimPrefix(txt, prefix)
		}
	}

	return ""
}
