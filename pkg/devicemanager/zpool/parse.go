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

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/coral-ha/clownf/utils/log"
)

const noPoolsAvailable = "no pools available to import"

var (
	sectionRegexp = regexp.MustCompile(`^\s*(pool|id|state|status|action|see|config|comment|errata):\s?(.*)$`)
	errataRegexp  = regexp.MustCompile(`^errata #(\d+) detected`)
	holderRegexp  = regexp.MustCompile(`exported from (\S+) \(hostid=`)
	zdbHostRegexp = regexp.MustCompile(`(?m)^\s*hostname:\s*'([^']*)'`)
)

// status text prefixes printed by zpool import, lower case
var statusPrefixes = []struct {
	prefix string
	status Status
}{
	{"one or more devices are missing from the system", StatusMissingDev},
	{"one or more devices contains corrupted data", StatusCorruptLabel},
	{"the pool data is corrupted", StatusCorruptData},
	{"one or more devices are offline", StatusOfflineDev},
	{"the pool metadata is corrupted", StatusCorruptPool},
	{"the pool is formatted using a legacy on-disk version", StatusVersionOlder},
	{"the pool is formatted using an incompatible version", StatusVersionNewer},
	{"some supported features are not enabled on the pool", StatusFeatDisabled},
	{"error reading or parsing the file(s) indicated by the 'compatibility'", StatusCompatibilityErr},
	{"one or more features are enabled on the pool despite not being", StatusIncompatibleFeat},
	{"the pool uses the following feature(s) not supported", StatusUnsupFeatRead},
	{"the pool can only be accessed in read-only mode", StatusUnsupFeatWrite},
	{"the pool is currently imported by another system", StatusHostIDActive},
	{"the pool has the multihost property on", StatusHostIDRequired},
	{"the pool was last accessed by another system", StatusHostIDMismatch},
	{"one or more devices are faulted", StatusFaultedDev},
	{"an intent log record cannot be read", StatusBadLog},
	{"one or more devices were being resilvered", StatusResilvering},
}

// parseImportList parses the listing of zpool import without pool argument
/*
   pool: lustre-ost0
     id: 15451357997522795478
  state: UNAVAIL
 status: The pool is currently imported by another system.
 action: The pool must be exported from oss1 (hostid=8a3c1f02)
	before it can be safely imported.
   see: https://openzfs.github.io/openzfs-docs/msg/ZFS-8000-EY
 config:

	lustre-ost0  UNAVAIL  currently in use
	  sdb        ONLINE
*/
func parseImportList(output string) []ImportablePool {
	resp := []ImportablePool{}
	if strings.Contains(output, noPoolsAvailable) {
		return resp
	}

	var cur *ImportablePool
	field := ""
	flush := func() {
		if cur != nil {
			classify(cur)
			resp = append(resp, *cur)
		}
	}

	for _, line := range strings.Split(output, "\n") {
		// the config section lists vdevs, only a new pool section ends it
		m := sectionRegexp.FindStringSubmatch(line)
		if m != nil && (field != "config" || m[1] == "pool") {
			field = m[1]
			value := strings.TrimSpace(m[2])
			if field == "pool" {
				flush()
				cur = &ImportablePool{Name: value}
				continue
			}
			if cur == nil {
				log.Warnf("zpool import field %s outside of a pool section: %s", field, value)
				continue
			}
			switch field {
			case "id":
				cur.ID = value
			case "state":
				cur.State = value
			case "status":
				cur.StatusText = value
			case "action":
				cur.Action = value
			}
			continue
		}

		text := strings.TrimSpace(line)
		if cur == nil || text == "" {
			continue
		}
		// wrapped lines of the multi-line paragraphs are tab indented
		switch field {
		case "status":
			cur.StatusText = joinLine(cur.StatusText, text)
		case "action":
			cur.Action = joinLine(cur.Action, text)
		}
	}
	flush()

	return resp
}

func joinLine(paragraph, line string) string {
	if paragraph == "" {
		return line
	}
	return paragraph + " " + line
}

func classify(p *ImportablePool) {
	p.Status = parseStatus(p.StatusText)
	if p.Status == StatusErrata {
		m := errataRegexp.FindStringSubmatch(strings.ToLower(p.StatusText))
		p.Errata, _ = strconv.Atoi(m[1])
	}
	if p.Status == StatusHostIDActive {
		if m := holderRegexp.FindStringSubmatch(p.Action); m != nil && m[1] != "<unknown>" {
			p.Holder = m[1]
		}
	}
}

func parseStatus(text string) Status {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return StatusOK
	}
	if errataRegexp.MatchString(text) {
		return StatusErrata
	}
	for _, s := range statusPrefixes {
		if strings.HasPrefix(text, s.prefix) {
			return s.status
		}
	}
	log.Warnf("unrecognized zpool import status: %s", text)
	return StatusUnknown
}

// parseZdbHostname picks the hostname of the last writer out of zdb -C
/*
MOS Configuration:
        version: 5000
        name: 'lustre-ost0'
        state: 0
        txg: 1124
        pool_guid: 15451357997522795478
        errata: 0
        hostid: 2318143234
        hostname: 'oss1'
*/
func parseZdbHostname(output string) string {
	m := zdbHostRegexp.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return m[1]
}
