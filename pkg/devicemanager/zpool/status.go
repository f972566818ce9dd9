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

package zpool

import "github.com/coral-ha/clownf/pkg/verdict"

type outcome struct {
	verdict verdict.Verdict
	// messages are logged as errors, HostIDMismatch and Errata take an argument
	messages []string
}

var statusTable = map[Status]outcome{
	StatusOK:               {verdict.Mountable, nil},
	StatusMissingDev:       {verdict.Fatal, []string{"one or more devices are missing from the system"}},
	StatusCorruptLabel:     {verdict.Fatal, []string{"one or more devices contains corrupted data"}},
	StatusCorruptData:      {verdict.Fatal, []string{"the pool data is corrupted"}},
	StatusOfflineDev:       {verdict.Fatal, []string{"one or more devices are offline"}},
	StatusCorruptPool:      {verdict.Fatal, []string{"the pool metadata is corrupted"}},
	StatusVersionOlder:     {verdict.Fatal, []string{"the pool is formatted using a legacy on-disk version"}},
	StatusVersionNewer:     {verdict.Fatal, []string{"the pool is formatted using a incompatible version"}},
	StatusFeatDisabled:     {verdict.Fatal, []string{"some supported features are not enabled on the pool"}},
	StatusUnsupFeatRead:    {verdict.Fatal, []string{"the pool uses feature(s) not supported on this system"}},
	StatusUnsupFeatWrite:   {verdict.Fatal, []string{"the pool uses write feature(s) not supported on this system"}},
	StatusHostIDActive:     {verdict.Occupied, nil},
	StatusHostIDRequired:   {verdict.Fatal, []string{"the pool has the multihost property on", "It cannot be safely imported when the system hostid is not set"}},
	StatusHostIDMismatch:   {verdict.ForceRequired, []string{"the pool was last accessed by %s, import needs to have -f option"}},
	StatusFaultedDev:       {verdict.Fatal, []string{"one or more devices are faulted"}},
	StatusBadLog:           {verdict.Fatal, []string{"an intent log record cannot be read"}},
	StatusResilvering:      {verdict.Fatal, []string{"one or more devices were being resilvered"}},
	StatusErrata:           {verdict.Fatal, []string{"errata #%d detected"}},
	StatusCompatibilityErr: {verdict.Fatal, []string{"the pool compatibility property file cannot be read or parsed"}},
	StatusIncompatibleFeat: {verdict.Fatal, []string{"the pool has features enabled that its compatibility property does not request"}},
	StatusUnknown:          {verdict.Again, []string{"the import status of the pool is not recognized"}},
}

// VerdictOf is the verdict a pool in status s gets
func VerdictOf(s Status) verdict.Verdict {
	if o, ok := statusTable[s]; ok {
		return o.verdict
	}
	return verdict.Again
}
