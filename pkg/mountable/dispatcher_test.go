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

package mountable

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/coral-ha/clownf/pkg/configuration"
	"github.com/coral-ha/clownf/pkg/devicemanager"
	"github.com/coral-ha/clownf/pkg/devicemanager/ldiskfs"
	"github.com/coral-ha/clownf/pkg/devicemanager/zpool"
	"github.com/coral-ha/clownf/pkg/metrics"
	"github.com/coral-ha/clownf/pkg/verdict"
)

type heldPoolClient struct {
	holder string
	closed bool
}

func (c *heldPoolClient) Imported(context.Context, string) (bool, error) { return false, nil }

func (c *heldPoolClient) SearchImport(_ context.Context, pool string) ([]zpool.ImportablePool, error) {
	return []zpool.ImportablePool{{Name: pool, Status: zpool.StatusHostIDActive, Holder: c.holder}}, nil
}

func (c *heldPoolClient) LastHostname(context.Context, string) (string, error) { return "", nil }

func (c *heldPoolClient) Close() error {
	c.closed = true
	return nil
}

// writeCleanImage writes a 4k block ldiskfs image whose MMP block records a clean unmount
func writeCleanImage(dir string) string {
	le := binary.LittleEndian
	img := make([]byte, 16*4096)

	sb := img[ldiskfs.SuperblockOffset:]
	le.PutUint32(sb[0x04:], 16)
	le.PutUint32(sb[0x18:], 2)
	le.PutUint16(sb[0x38:], 0xEF53)
	le.PutUint32(sb[0x60:], ldiskfs.FeatureIncompatMMP)
	le.PutUint16(sb[0x166:], 5)
	le.PutUint64(sb[0x168:], 10)

	mmp := img[10*4096:]
	le.PutUint32(mmp[0:], ldiskfs.MMPMagic)
	le.PutUint32(mmp[4:], ldiskfs.MMPSeqClean)

	path := filepath.Join(dir, "ost0.img")
	Expect(os.WriteFile(path, img, 0600)).To(Succeed())
	return path
}

var _ = Describe("Dispatcher", func() {
	var (
		dir        string
		out        *bytes.Buffer
		poolClient *heldPoolClient
		dispatcher *Dispatcher
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "clownf-mountable")
		Expect(err).NotTo(HaveOccurred())

		out = &bytes.Buffer{}
		poolClient = &heldPoolClient{holder: "oss2"}
		dispatcher = &Dispatcher{
			Detector: &devicemanager.Detector{
				Classifier: &zpool.Classifier{NewClient: func() (zpool.Client, error) {
					return poolClient, nil
				}},
			},
			Out:   out,
			Clock: testingclock.NewFakeClock(time.Unix(1700000000, 0)),
		}
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	Context("ldiskfs device", func() {
		It("reports a cleanly unmounted target as mountable", func() {
			image := writeCleanImage(dir)

			Expect(dispatcher.Run(context.Background(), image)).To(Equal(verdict.Mountable))
			Expect(out.String()).To(Equal("Lustre service on device [" + image + "] is mountable\n"))
		})
	})

	Context("zpool", func() {
		It("names the host holding the pool", func() {
			Expect(dispatcher.Run(context.Background(), "lustre-ost1")).To(Equal(verdict.Occupied))
			Expect(out.String()).To(Equal("Occupied by host: oss2\n"))
			Expect(poolClient.closed).To(BeTrue())
		})

		It("prints the bare prefix when the holder is unnamed", func() {
			poolClient.holder = ""
			Expect(dispatcher.Run(context.Background(), "lustre-ost1")).To(Equal(verdict.Occupied))
			Expect(out.String()).To(Equal("Occupied by host: \n"))
		})
	})

	Context("invalid input", func() {
		It("rejects an empty device without output", func() {
			Expect(dispatcher.Run(context.Background(), "")).To(Equal(verdict.InvalidInput))
			Expect(out.String()).To(BeEmpty())
		})

		It("rejects a path that is neither ldiskfs nor a pool name", func() {
			device := filepath.Join(dir, "missing")
			Expect(dispatcher.Run(context.Background(), device)).To(Equal(verdict.InvalidInput))
			Expect(out.String()).To(ContainSubstring("is not mountable: invalid_input"))
		})
	})

	Context("metrics", func() {
		It("exports the verdict of the check", func() {
			dispatcher.Metrics = metrics.NewCheckCollector()
			dispatcher.MetricsTextfile = filepath.Join(dir, "clownf_storage.prom")

			Expect(dispatcher.Run(context.Background(), "lustre-ost1")).To(Equal(verdict.Occupied))

			content, err := os.ReadFile(filepath.Join(dir, "clownf_storage_lustre-ost1.prom"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(content)).To(ContainSubstring(
				`clownf_storage_mountable_verdict{backend="zfs",device="lustre-ost1",verdict="occupied"} 1`))
		})

		It("writes one textfile per device", func() {
			dispatcher.Metrics = metrics.NewCheckCollector()
			dispatcher.MetricsTextfile = filepath.Join(dir, "clownf_storage.prom")

			Expect(dispatcher.Run(context.Background(), "lustre-ost1")).To(Equal(verdict.Occupied))
			Expect(dispatcher.Run(context.Background(), "lustre-ost2")).To(Equal(verdict.Occupied))

			first := filepath.Join(dir, "clownf_storage_lustre-ost1.prom")
			second := filepath.Join(dir, "clownf_storage_lustre-ost2.prom")
			Expect(first).To(BeAnExistingFile())
			Expect(second).To(BeAnExistingFile())
			Expect(filepath.Join(dir, "clownf_storage.prom")).NotTo(BeAnExistingFile())

			content, err := os.ReadFile(second)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(content)).To(ContainSubstring(`device="lustre-ost2"`))
		})

		It("keeps the verdict when the textfile cannot be written", func() {
			dispatcher.Metrics = metrics.NewCheckCollector()
			dispatcher.MetricsTextfile = filepath.Join(dir, "missing", "clownf_storage.prom")

			Expect(dispatcher.Run(context.Background(), "lustre-ost1")).To(Equal(verdict.Occupied))
		})
	})

	Context("wiring", func() {
		It("builds a dispatcher from the configuration", func() {
			cfg := &configuration.Storage{
				MMPMinCheckInterval: 10,
				ZpoolCmd:            "zpool",
				ZdbCmd:              "zdb",
				ZfsDevice:           "/dev/zfs",
				CommandTimeout:      time.Minute,
				MetricsTextfile:     filepath.Join(dir, "clownf_storage.prom"),
			}
			d := NewDispatcher(cfg, out)
			Expect(d.Detector).NotTo(BeNil())
			Expect(d.Metrics).NotTo(BeNil())
			Expect(d.MetricsTextfile).To(Equal(cfg.MetricsTextfile))

			cfg.MetricsTextfile = ""
			Expect(NewDispatcher(cfg, out).Metrics).To(BeNil())
		})
	})
})
