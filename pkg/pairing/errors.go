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

package pairing

import "errors"

var (
	ErrAttemptActive       = errors.New("a pairing attempt is already active for this device")
	ErrNoAttempt           = errors.New("no active pairing attempt for this device")
	ErrNotAwaitingPin      = errors.New("pairing attempt is not awaiting a pin")
	ErrNothingToPair       = errors.New("device has no unpaired protocols")
	ErrProtocolUnavailable = errors.New("device does not advertise the requested protocol")
	ErrAdapterMissing      = errors.New("no adapter registered for protocol")
	ErrAttemptCancelled    = errors.New("pairing attempt was cancelled")
)
