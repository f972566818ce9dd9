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

// Package mountable answers whether a Lustre target can be mounted on this
// host without another host holding it.
package mountable

import (
	"context"
	"fmt"
	"io"
	"os"

	"k8s.io/mount-utils"
	"k8s.io/utils/clock"

	"github.com/coral-ha/clownf/pkg/configuration"
	"github.com/coral-ha/clownf/pkg/devicemanager"
	"github.com/coral-ha/clownf/pkg/devicemanager/ldiskfs"
	"github.com/coral-ha/clownf/pkg/devicemanager/zpool"
	"github.com/coral-ha/clownf/pkg/metrics"
	"github.com/coral-ha/clownf/pkg/verdict"
	"github.com/coral-ha/clownf/utils/exec"
	"github.com/coral-ha/clownf/utils/log"
)

// Detector is satisfied by *devicemanager.Detector
type Detector interface {
	Detect(device string) devicemanager.Backend
}

// Dispatcher runs exactly one protocol per device and reports one verdict
type Dispatcher struct {
	Detector Detector
	// Out receives the status line
	Out   io.Writer
	Clock clock.PassiveClock
	// Metrics and MetricsTextfile are optional, each device gets its own
	// textfile derived from MetricsTextfile
	Metrics         *metrics.CheckCollector
	MetricsTextfile string
}

// NewDispatcher wires the backends from the configuration
func NewDispatcher(cfg *configuration.Storage, out io.Writer) *Dispatcher {
	executor := &exec.CommandExecutor{Timeout: cfg.CommandTimeout}

	d := &Dispatcher{
		Detector: &devicemanager.Detector{
			Prober: ldiskfs.NewProber(clock.RealClock{}, cfg.MinCheckInterval()),
			Classifier: zpool.NewClassifier(zpool.Options{
				ZpoolCmd:   cfg.ZpoolCmd,
				ZdbCmd:     cfg.ZdbCmd,
				ZfsDevice:  cfg.ZfsDevice,
				SearchDirs: cfg.ImportSearchDirs,
				CacheFile:  cfg.ImportCacheFile,
				Executor:   executor,
			}),
			Mounter: mount.New(""),
		},
		Out:   out,
		Clock: clock.RealClock{},
	}
	if cfg.MetricsTextfile != "" {
		d.Metrics = metrics.NewCheckCollector()
		d.MetricsTextfile = cfg.MetricsTextfile
	}
	return d
}

// Run checks device and returns its verdict, the status line goes to Out
func (d *Dispatcher) Run(ctx context.Context, device string) verdict.Verdict {
	if device == "" {
		log.Error("no device given")
		return verdict.InvalidInput
	}

	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Out == nil {
		d.Out = os.Stdout
	}

	start := d.Clock.Now()
	backend := d.Detector.Detect(device)
	log.Debugf("device [%s] has backend [%s]", device, backend.Type())

	result := backend.Check(ctx)
	if _, err := fmt.Fprintln(d.Out, result.StatusLine(device)); err != nil {
		log.Warnf("failed to print status of device [%s]: %s", device, err)
	}

	d.record(metrics.Check{
		Device:   device,
		Backend:  backend.Type().String(),
		Verdict:  result.Verdict,
		Duration: d.Clock.Since(start),
		Finished: d.Clock.Now(),
	})
	return result.Verdict
}

func (d *Dispatcher) record(check metrics.Check) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.Record(check)
	if d.MetricsTextfile == "" {
		return
	}
	// the verdict stands even if its metrics are lost
	path := metrics.TextfilePath(d.MetricsTextfile, check.Device)
	if err := metrics.WriteTextfile(path, d.Metrics); err != nil {
		log.Warnf("failed to export metrics of device [%s]: %s", check.Device, err)
	}
}
