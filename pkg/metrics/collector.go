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

package metrics

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coral-ha/clownf/pkg/verdict"
	"github.com/coral-ha/clownf/utils/log"
)

const (
	namespace string = "clownf"
	subsystem string = "storage"
)

var (
	verdictDesc = typedFactorDesc{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "mountable_verdict"),
			"clownf_storage: 1 for the verdict of the last mountable check, 0 for the others.",
			[]string{"device", "backend", "verdict"},
			nil,
		),
		valueType: prometheus.GaugeValue,
	}
	durationDesc = typedFactorDesc{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "check_duration_seconds"),
			"clownf_storage: Duration of the last mountable check.",
			[]string{"device", "backend"},
			nil,
		),
		valueType: prometheus.GaugeValue,
	}
	timestampDesc = typedFactorDesc{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "last_check_timestamp_seconds"),
			"clownf_storage: Unix time the last mountable check finished.",
			[]string{"device", "backend"},
			nil,
		),
		valueType: prometheus.GaugeValue,
	}
)

type typedFactorDesc struct {
	desc      *prometheus.Desc
	valueType prometheus.ValueType
}

func (d *typedFactorDesc) mustNewConstMetric(value float64, labels ...string) prometheus.Metric {
	return prometheus.MustNewConstMetric(d.desc, d.valueType, value, labels...)
}

// Check is the outcome of one mountable check
type Check struct {
	Device   string
	Backend  string
	Verdict  verdict.Verdict
	Duration time.Duration
	Finished time.Time
}

// CheckCollector implements the prometheus.Collector interface.
// It keeps the last check per device.
type CheckCollector struct {
	mu     sync.Mutex
	checks map[string]Check
}

func NewCheckCollector() *CheckCollector {
	return &CheckCollector{checks: map[string]Check{}}
}

// Record replaces the previous check of the same device
func (c *CheckCollector) Record(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[check.Device] = check
}

// Describe implements the prometheus.Collector interface.
func (c *CheckCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- verdictDesc.desc
	ch <- durationDesc.desc
	ch <- timestampDesc.desc
}

// Collect implements the prometheus.Collector interface.
func (c *CheckCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, check := range c.checks {
		for _, v := range verdict.All() {
			var value float64
			if v == check.Verdict {
				value = 1
			}
			ch <- verdictDesc.mustNewConstMetric(value, check.Device, check.Backend, v.String())
		}
		ch <- durationDesc.mustNewConstMetric(check.Duration.Seconds(), check.Device, check.Backend)
		ch <- timestampDesc.mustNewConstMetric(float64(check.Finished.Unix()), check.Device, check.Backend)
	}
}

// TextfilePath derives the textfile of one device from base, so that checks of
// different targets do not overwrite each other. The device name is appended
// to the file name before its extension, e.g. /dir/clownf.prom and /dev/sdb
// give /dir/clownf_dev_sdb.prom.
func TextfilePath(base, device string) string {
	dir, file := filepath.Split(base)
	ext := filepath.Ext(file)
	if ext == "" {
		ext = ".prom"
	}
	name := strings.TrimSuffix(file, filepath.Ext(file))

	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, strings.Trim(device, "/"))

	return filepath.Join(dir, name+"_"+sanitized+ext)
}

// WriteTextfile writes the collected metrics atomically in the text exposition
// format, for the textfile collector of node_exporter.
func WriteTextfile(path string, c prometheus.Collector) error {
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return fmt.Errorf("failed to register collector: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	log.Debugf("metrics written to %s", path)
	return nil
}
