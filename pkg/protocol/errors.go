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

package protocol

import "errors"

var (
	ErrPinRejected        = errors.New("device rejected the pairing pin")
	ErrHandshakeRejected  = errors.New("device rejected the pairing handshake")
	ErrAuthRejected       = errors.New("device rejected the stored credential")
	ErrUnsupportedCommand = errors.New("command not supported by this adapter")
	ErrSessionClosed      = errors.New("adapter session is closed")
	ErrDeviceUnreachable  = errors.New("device is unreachable")
)
