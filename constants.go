/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package clownf

const (
	// Version project
	Version = "beta"
	// ProgramName is the name of the storage checking binary, orchestrator scripts invoke it by this name.
	ProgramName = "clownf-storage"
	// MountableCommand is the only sub-command of the storage checking binary
	MountableCommand = "mountable"

	// DefaultConfigPath is searched for an optional storage.json
	DefaultConfigPath = "/etc/clownf/"
	// DefaultConfigName config file name without extension
	DefaultConfigName = "storage"
	// EnvPrefix prefixes every environment override, e.g. CLOWNF_LOGLEVEL
	EnvPrefix = "CLOWNF"

	// DefaultZpoolCmd zfs pool administration command
	DefaultZpoolCmd = "zpool"
	// DefaultZdbCmd zfs debugger, used to read the label config of an exported pool
	DefaultZdbCmd = "zdb"
	// DefaultZfsDevice control device of the zfs kernel module
	DefaultZfsDevice = "/dev/zfs"
)
