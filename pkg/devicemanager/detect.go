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

package devicemanager

import (
	"context"
	"strings"

	"k8s.io/mount-utils"

	"github.com/coral-ha/clownf"
	"github.com/coral-ha/clownf/pkg/devicemanager/ldiskfs"
	"github.com/coral-ha/clownf/pkg/devicemanager/zpool"
	"github.com/coral-ha/clownf/pkg/verdict"
	"github.com/coral-ha/clownf/utils/log"
)

// BackendType is decided once per device, before any protocol runs
type BackendType int

const (
	BackendUnknown BackendType = iota
	BackendLdiskfs
	BackendZpool
)

func (t BackendType) String() string {
	switch t {
	case BackendLdiskfs:
		return "ldiskfs"
	case BackendZpool:
		return "zfs"
	}
	return "unknown"
}

// Backend is one of LdiskfsBackend, ZpoolBackend or UnknownBackend
type Backend interface {
	Type() BackendType
	// Name is the device path or the pool name
	Name() string
	// Check runs the mountability protocol of the backend
	Check(ctx context.Context) verdict.Result
	backend()
}

type LdiskfsBackend struct {
	Device string
	prober *ldiskfs.Prober
}

func (b *LdiskfsBackend) Type() BackendType { return BackendLdiskfs }
func (b *LdiskfsBackend) Name() string      { return b.Device }
func (*LdiskfsBackend) backend()            {}

func (b *LdiskfsBackend) Check(ctx context.Context) verdict.Result {
	fs, err := ldiskfs.Open(b.Device)
	if err != nil {
		log.Errorf("failed to open device [%s]: %s", b.Device, err)
		return verdict.New(verdict.Again)
	}
	defer fs.Close()

	return b.prober.Check(ctx, fs)
}

type ZpoolBackend struct {
	Pool       string
	classifier *zpool.Classifier
}

func (b *ZpoolBackend) Type() BackendType { return BackendZpool }
func (b *ZpoolBackend) Name() string      { return b.Pool }
func (*ZpoolBackend) backend()            {}

func (b *ZpoolBackend) Check(ctx context.Context) verdict.Result {
	return b.classifier.Check(ctx, b.Pool)
}

type UnknownBackend struct {
	Device string
}

func (b *UnknownBackend) Type() BackendType { return BackendUnknown }
func (b *UnknownBackend) Name() string      { return b.Device }
func (*UnknownBackend) backend()            {}

func (b *UnknownBackend) Check(context.Context) verdict.Result {
	log.Errorf("unknown fstype of device [%s]", b.Device)
	return verdict.New(verdict.InvalidInput)
}

// Detector binds devices to the protocol of their backend
type Detector struct {
	Prober     *ldiskfs.Prober
	Classifier *zpool.Classifier
	// Mounter is optional, it only feeds a diagnostic
	Mounter mount.Interface
}

// DetectType opens device superblock-only, the handle is closed before returning
func DetectType(device string) BackendType {
	fs, err := ldiskfs.Open(device)
	if err == nil {
		log.Debugf("device [%s] is ldiskfs, volume [%s] block size [%d]",
			device, fs.Superblock().VolumeName, fs.Superblock().BlockSize)
		fs.Close()
		return BackendLdiskfs
	}
	log.Debugf("device [%s] is not ldiskfs: %s", device, err)

	if !strings.Contains(device, "/") {
		return BackendZpool
	}
	return BackendUnknown
}

// Detect returns the backend of device
func (d *Detector) Detect(device string) Backend {
	switch DetectType(device) {
	case BackendLdiskfs:
		d.warnMounted(device)
		prober := d.Prober
		if prober == nil {
			prober = ldiskfs.NewProber(nil, ldiskfs.MMPMinCheckInterval)
		}
		return &LdiskfsBackend{Device: device, prober: prober}
	case BackendZpool:
		classifier := d.Classifier
		if classifier == nil {
			classifier = zpool.NewClassifier(zpool.Options{
				ZpoolCmd:  clownf.DefaultZpoolCmd,
				ZdbCmd:    clownf.DefaultZdbCmd,
				ZfsDevice: clownf.DefaultZfsDevice,
			})
		}
		return &ZpoolBackend{Pool: device, classifier: classifier}
	}
	return &UnknownBackend{Device: device}
}

func (d *Detector) warnMounted(device string) {
	if d.Mounter == nil {
		return
	}
	mountPoints, err := d.Mounter.List()
	if err != nil {
		log.Debugf("failed to list mount points: %s", err)
		return
	}
	for _, mp := range mountPoints {
		if mp.Device == device {
			log.Warnf("device [%s] is mounted on [%s] of this host", device, mp.Path)
		}
	}
}
