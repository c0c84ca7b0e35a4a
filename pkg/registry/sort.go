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

package registry

import (
	"sort"

	"github.com/carverauto/castbridge/pkg/models"
)

// sortViews orders snapshots deterministically: online before unknown
// before offline, then by name, then by device ID.
func sortViews(views []models.DeviceView) {
	rank := func(online *bool) int {
		switch {
		case online != nil && *online:
			return 0
		case online == nil:
			return 1
		default:
			return 2
		}
	}

	sort.Slice(views, func(i, j int) bool {
		ri, rj := rank(views[i].Online), rank(views[j].Online)
		if ri != rj {
			return ri < rj
		}

		if views[i].Name != views[j].Name {
			return views[i].Name < views[j].Name
		}

		return views[i].DeviceID < views[j].DeviceID
	})
}
