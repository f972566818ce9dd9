package ldiskfs

import (
	"context"
	"errors"
	"time"

	"k8s.io/utils/clock"

	"github.com/coral-ha/clownf/pkg/verdict"
	"github.com/coral-ha/clownf/utils/log"
)

// PollInterval the MMP block can change at any second, do not sleep longer
const PollInterval = time.Second

// MMPReader is satisfied by *Filesystem
type MMPReader interface {
	Device() string
	ReadMMP() (*MMPRecord, error)
}

// Prober decides mountability from the MMP block. A holder rewrites the
// sequence every check interval; silence for the whole wait budget is taken as
// absence of a holder. That only holds as long as the recorded interval is
// honest, the floor bounds how far a bogus interval can shorten the wait.
type Prober struct {
	clock            clock.Clock
	minCheckInterval int
}

// NewProber returns a prober, minCheckInterval below MMPMinCheckInterval is raised to it
func NewProber(c clock.Clock, minCheckInterval int) *Prober {
	if c == nil {
		c = clock.RealClock{}
	}
	if minCheckInterval < MMPMinCheckInterval {
		minCheckInterval = MMPMinCheckInterval
	}
	return &Prober{clock: c, minCheckInterval: minCheckInterval}
}

// EffectiveInterval applies the floor to the interval recorded by the holder
func EffectiveInterval(recorded uint16, floor int) int {
	interval := int(recorded)
	if interval < floor {
		interval = floor
	}
	return interval
}

// WaitBudget is the number of one second polls for a check interval
func WaitBudget(interval int) int {
	budget := interval*2 + 1
	if budget > interval+60 {
		budget = interval + 60
	}
	return budget
}

// Check runs the MMP protocol against fs
func (p *Prober) Check(ctx context.Context, fs MMPReader) verdict.Result {
	device := fs.Device()

	mmp, err := fs.ReadMMP()
	if errors.Is(err, ErrMMPNotSupported) {
		log.Errorf("MMP feature is not supported by device [%s]", device)
		return verdict.New(verdict.Unsupported)
	}
	if err != nil {
		log.Errorf("failed to read MMP block from device [%s]: %s", device, err)
		return verdict.New(verdict.Again)
	}

	interval := EffectiveInterval(mmp.CheckInterval, p.minCheckInterval)

	seq := mmp.Seq
	if mmp.IsClean() {
		log.Debugf("MMP of device [%s] is clean", device)
		return verdict.New(verdict.Mountable)
	}
	if mmp.IsFsck() {
		log.Errorf("fsck is running on device [%s], it might be mountable later", device)
		return verdict.New(verdict.Again)
	}
	if seq > MMPSeqMax {
		log.Errorf("unknown MMP sequence [0x%x] on device [%s]", seq, device)
		return verdict.New(verdict.Again)
	}

	waitTime := WaitBudget(interval)
	log.Infof("checking MMP of device [%s] last written by [%s] seq [0x%x], max wait time is [%d] seconds",
		device, mmp.NodeName, seq, waitTime)

	for ; waitTime > 0; waitTime-- {
		p.clock.Sleep(PollInterval)
		if ctx.Err() != nil {
			log.Errorf("interrupted while checking MMP of device [%s]: %s", device, ctx.Err())
			return verdict.New(verdict.Again)
		}

		mmp, err = fs.ReadMMP()
		if err != nil {
			log.Errorf("failed to read MMP block from device [%s]: %s", device, err)
			return verdict.New(verdict.Again)
		}

		if mmp.Seq != seq {
			log.Errorf("MMP sequence of device [%s] changed from [0x%x] to [0x%x], device is in use by [%s]",
				device, seq, mmp.Seq, mmp.NodeName)
			return verdict.OccupiedBy(mmp.NodeName)
		}
	}

	return verdict.New(verdict.Mountable)
}
