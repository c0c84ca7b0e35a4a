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

// Package scan discovers streaming devices on the local network via mDNS.
package scan

import (
	"context"

	"github.com/carverauto/castbridge/pkg/models"
)

// ServiceRecord is one advertised protocol endpoint on a device.
type ServiceRecord struct {
	Protocol models.Protocol
	Port     int
}

// Result is one device found during a scan pass. UID is the protocol
// independent identity key shared by all services the device advertises.
type Result struct {
	UID      string
	Name     string
	Address  string
	Services []ServiceRecord
}

// Port returns the advertised port for a protocol.
func (r *Result) Port(p models.Protocol) (int, bool) {
	for _, svc := range r.Services {
		if svc.Protocol == p {
			return svc.Port, true
		}
	}

	return 0, false
}

// Protocols lists the advertised protocols in priority order.
func (r *Result) Protocols() []models.Protocol {
	out := make([]models.Protocol, 0, len(r.Services))

	for _, p := range models.ProtocolPriority {
		if _, ok := r.Port(p); ok {
			out = append(out, p)
		}
	}

	return out
}

// Scanner performs one network scan pass. Implementations must honor the
// context deadline and return whatever was collected before it expired.
type Scanner interface {
	Scan(ctx context.Context) ([]Result, error)
}
