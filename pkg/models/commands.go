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

package models

// Command is an abstract remote-control command dispatched to the active
// session. Translation to the open control adapter's capability happens in
// the session manager.
type Command string

const (
	CommandUp            Command = "up"
	CommandDown          Command = "down"
	CommandLeft          Command = "left"
	CommandRight         Command = "right"
	CommandSelect        Command = "select"
	CommandMenu          Command = "menu"
	CommandHome          Command = "home"
	CommandControlCenter Command = "control_center"
	CommandPlay          Command = "play"
	CommandPause         Command = "pause"
	CommandPlayPause     Command = "play_pause"
	CommandVolumeUp      Command = "volume_up"
	CommandVolumeDown    Command = "volume_down"
	CommandPowerOn       Command = "power_on"
	CommandPowerOff      Command = "power_off"
	CommandPowerToggle   Command = "power_toggle"
	CommandLaunchApp     Command = "launch_app"
)

// remoteCommands is the set of commands accepted from clients.
var remoteCommands = map[Command]struct{}{
	CommandUp: {}, CommandDown: {}, CommandLeft: {}, CommandRight: {},
	CommandSelect: {}, CommandMenu: {}, CommandHome: {}, CommandControlCenter: {},
	CommandPlay: {}, CommandPause: {}, CommandPlayPause: {},
	CommandVolumeUp: {}, CommandVolumeDown: {},
	CommandPowerOn: {}, CommandPowerOff: {}, CommandPowerToggle: {},
	CommandLaunchApp: {},
}

// IsRemoteCommand reports whether name is a recognized remote command.
func IsRemoteCommand(name string) bool {
	_, ok := remoteCommands[Command(name)]
	return ok
}

// CommandRequest carries a command and its arguments.
type CommandRequest struct {
	Command  Command
	BundleID string
}

// PowerState reports the device power state as seen by the control
// adapter.
type PowerState string

const (
	PowerStateOn      PowerState = "on"
	PowerStateOff     PowerState = "off"
	PowerStateUnknown PowerState = "unknown"
)
