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

import "errors"

var (
	ErrNotPaired        = errors.New("device has no paired protocol")
	ErrAlreadyConnected = errors.New("another device session is active")
	ErrUnreachable      = errors.New("device is not online")
	ErrNotConnected     = errors.New("no device is connected")
	ErrUnknownDevice    = errors.New("unknown device")
)
