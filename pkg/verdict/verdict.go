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

// Package verdict holds the mountability outcomes and their exit codes.
// The exit codes are a contract with the failover orchestrator, which
// branches on them, so they must never be renumbered.
package verdict

import "fmt"

// Verdict is the single classified outcome of a mountability check
type Verdict int

const (
	// Mountable no live holder, safe to mount or import
	Mountable Verdict = iota
	// Occupied a live holder was detected
	Occupied
	// ForceRequired the holder record is stale but not provably clean, needs an operator override
	ForceRequired
	// Fatal the backend is structurally broken
	Fatal
	// Unsupported the liveness feature is absent on this device
	Unsupported
	// Again transient failure or indeterminate state, retry later
	Again
	// InvalidInput bad arguments, unknown or ambiguous device
	InvalidInput
)

// OccupiedPrefix is grepped by other tooling, keep it literal.
const OccupiedPrefix = "Occupied by host: "

var verdictInfo = map[Verdict]struct {
	name     string
	exitCode int
}{
	Mountable:     {"mountable", 0},
	ForceRequired: {"force_required", 24},
	InvalidInput:  {"invalid_input", 25},
	Fatal:         {"fatal", 26},
	Unsupported:   {"unsupported", 27},
	Again:         {"again", 28},
	Occupied:      {"occupied", 29},
}

// All lists every verdict in declaration order
func All() []Verdict {
	return []Verdict{Mountable, Occupied, ForceRequired, Fatal, Unsupported, Again, InvalidInput}
}

func (v Verdict) String() string {
	if info, ok := verdictInfo[v]; ok {
		return info.name
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// ExitCode is the process exit status reported for the verdict.
// Unknown values map to the InvalidInput code, never to success.
func (v Verdict) ExitCode() int {
	if info, ok := verdictInfo[v]; ok {
		return info.exitCode
	}
	return verdictInfo[InvalidInput].exitCode
}

// Result is what a protocol hands back to the dispatcher
type Result struct {
	Verdict Verdict
	// Holder is the host recorded by the live holder, only set for Occupied
	Holder string
}

// New returns a result without holder
func New(v Verdict) Result {
	return Result{Verdict: v}
}

// OccupiedBy returns an Occupied result, holder may be empty when no hostname was recorded
func OccupiedBy(holder string) Result {
	return Result{Verdict: Occupied, Holder: holder}
}

// StatusLine is the human readable line written to stdout for device
func (r Result) StatusLine(device string) string {
	switch r.Verdict {
	case Mountable:
		return fmt.Sprintf("Lustre service on device [%s] is mountable", device)
	case Occupied:
		return OccupiedPrefix + r.Holder
	default:
		return fmt.Sprintf("Lustre service on device [%s] is not mountable: %s", device, r.Verdict)
	}
}
