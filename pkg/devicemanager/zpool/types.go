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

import "fmt"

// Status is the import status of a pool as zpool reports it before import
type Status int

const (
	StatusOK Status = iota
	StatusMissingDev
	StatusCorruptLabel
	StatusCorruptData
	StatusOfflineDev
	StatusCorruptPool
	StatusVersionOlder
	StatusVersionNewer
	StatusFeatDisabled
	StatusUnsupFeatRead
	StatusUnsupFeatWrite
	StatusHostIDActive
	StatusHostIDRequired
	StatusHostIDMismatch
	StatusFaultedDev
	StatusBadLog
	StatusResilvering
	StatusErrata
	StatusCompatibilityErr
	StatusIncompatibleFeat
	// StatusUnknown a status line this version does not recognize
	StatusUnknown
)

var statusNames = map[Status]string{
	StatusOK:               "ok",
	StatusMissingDev:       "missing_dev",
	StatusCorruptLabel:     "corrupt_label",
	StatusCorruptData:      "corrupt_data",
	StatusOfflineDev:       "offline_dev",
	StatusCorruptPool:      "corrupt_pool",
	StatusVersionOlder:     "version_older",
	StatusVersionNewer:     "version_newer",
	StatusFeatDisabled:     "feat_disabled",
	StatusUnsupFeatRead:    "unsup_feat_read",
	StatusUnsupFeatWrite:   "unsup_feat_write",
	StatusHostIDActive:     "hostid_active",
	StatusHostIDRequired:   "hostid_required",
	StatusHostIDMismatch:   "hostid_mismatch",
	StatusFaultedDev:       "faulted_dev",
	StatusBadLog:           "bad_log",
	StatusResilvering:      "resilvering",
	StatusErrata:           "errata",
	StatusCompatibilityErr: "compatibility_err",
	StatusIncompatibleFeat: "incompatible_feat",
	StatusUnknown:          "unknown",
}

// AllStatus lists every status in declaration order
func AllStatus() []Status {
	all := make([]Status, 0, len(statusNames))
	for s := StatusOK; s <= StatusUnknown; s++ {
		all = append(all, s)
	}
	return all
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ImportablePool is one entry of the zpool import listing
type ImportablePool struct {
	Name  string
	ID    string
	State string
	// StatusText is the raw status paragraph, empty for a healthy pool
	StatusText string
	Status     Status
	// Errata is only set for StatusErrata
	Errata int
	Action string
	// Holder is the host named in the action text of StatusHostIDActive, if any
	Holder string
}
