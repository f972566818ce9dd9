package ldiskfs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/coral-ha/clownf/pkg/verdict"
)

// sleepHookClock advances instantly and lets a test act as the remote holder between polls
type sleepHookClock struct {
	*testingclock.FakeClock
	sleeps  int
	onSleep func(n int)
}

func newSleepHookClock(onSleep func(n int)) *sleepHookClock {
	return &sleepHookClock{FakeClock: testingclock.NewFakeClock(time.Now()), onSleep: onSleep}
}

func (c *sleepHookClock) Sleep(d time.Duration) {
	c.FakeClock.Step(d)
	c.sleeps++
	if c.onSleep != nil {
		c.onSleep(c.sleeps)
	}
}

func checkImage(t *testing.T, path string, c *sleepHookClock, minCheckInterval int) verdict.Result {
	t.Helper()
	fs, err := Open(path)
	require.NoError(t, err)
	defer fs.Close()

	return NewProber(c, minCheckInterval).Check(context.Background(), fs)
}

func TestWaitBudget(t *testing.T) {
	table := []struct {
		interval int
		budget   int
	}{
		{interval: 5, budget: 11},
		{interval: 30, budget: 61},
		{interval: 59, budget: 119},
		{interval: 60, budget: 120},
		{interval: 61, budget: 121},
		{interval: 100, budget: 160},
	}
	for _, e := range table {
		assert.Equal(t, e.budget, WaitBudget(e.interval), "interval %d", e.interval)
	}
}

func TestEffectiveInterval(t *testing.T) {
	assert.Equal(t, 5, EffectiveInterval(0, MMPMinCheckInterval))
	assert.Equal(t, 5, EffectiveInterval(3, MMPMinCheckInterval))
	assert.Equal(t, 12, EffectiveInterval(12, MMPMinCheckInterval))
	assert.Equal(t, 20, EffectiveInterval(12, 20))
}

func TestCleanIsMountableWithoutPolling(t *testing.T) {
	path := writeImage(t, defaultImage(), mmpSpec{seq: MMPSeqClean, nodename: "oss1", interval: 5})
	c := newSleepHookClock(nil)

	result := checkImage(t, path, c, MMPMinCheckInterval)
	assert.Equal(t, verdict.Mountable, result.Verdict)
	assert.Zero(t, c.sleeps)
}

func TestFsckIsAgain(t *testing.T) {
	path := writeImage(t, defaultImage(), mmpSpec{seq: MMPSeqFsck, nodename: "oss1", interval: 5})
	c := newSleepHookClock(nil)

	result := checkImage(t, path, c, MMPMinCheckInterval)
	assert.Equal(t, verdict.Again, result.Verdict)
	assert.Zero(t, c.sleeps)
}

func TestUnknownSequenceIsAgain(t *testing.T) {
	path := writeImage(t, defaultImage(), mmpSpec{seq: 0xF0000000, nodename: "oss1", interval: 5})
	c := newSleepHookClock(nil)

	result := checkImage(t, path, c, MMPMinCheckInterval)
	assert.Equal(t, verdict.Again, result.Verdict)
	assert.Zero(t, c.sleeps)
}

func TestNoMMPFeatureIsUnsupported(t *testing.T) {
	spec := defaultImage()
	spec.mmp = false
	path := writeImage(t, spec, mmpSpec{})

	result := checkImage(t, path, newSleepHookClock(nil), MMPMinCheckInterval)
	assert.Equal(t, verdict.Unsupported, result.Verdict)
}

func TestBadMMPBlockIsAgain(t *testing.T) {
	spec := defaultImage()
	spec.mmpBlock = 200
	path := writeImage(t, spec, mmpSpec{})

	result := checkImage(t, path, newSleepHookClock(nil), MMPMinCheckInterval)
	assert.Equal(t, verdict.Again, result.Verdict)
}

func TestBadMMPMagicIsAgain(t *testing.T) {
	path := writeImage(t, defaultImage(), mmpSpec{magic: 0x0BADF00D, seq: 3})

	result := checkImage(t, path, newSleepHookClock(nil), MMPMinCheckInterval)
	assert.Equal(t, verdict.Again, result.Verdict)
}

func TestUnchangedSequenceIsMountable(t *testing.T) {
	table := []struct {
		recorded uint16
		floor    int
		polls    int
	}{
		{recorded: 0, floor: MMPMinCheckInterval, polls: 11},
		{recorded: 3, floor: MMPMinCheckInterval, polls: 11},
		{recorded: 7, floor: MMPMinCheckInterval, polls: 15},
		{recorded: 100, floor: MMPMinCheckInterval, polls: 160},
		{recorded: 5, floor: 10, polls: 21},
	}
	for _, e := range table {
		path := writeImage(t, defaultImage(), mmpSpec{seq: 1234, nodename: "oss1", interval: e.recorded})
		c := newSleepHookClock(nil)

		result := checkImage(t, path, c, e.floor)
		assert.Equal(t, verdict.Mountable, result.Verdict, "recorded interval %d", e.recorded)
		assert.Equal(t, e.polls, c.sleeps, "recorded interval %d", e.recorded)
	}
}

func TestChangedSequenceIsOccupied(t *testing.T) {
	spec := defaultImage()
	path := writeImage(t, spec, mmpSpec{seq: 1234, nodename: "oss1", interval: 5})

	c := newSleepHookClock(func(n int) {
		if n == 3 {
			// the holder failed over meanwhile, the latest writer is reported
			rewriteMMP(t, path, spec, mmpSpec{seq: 1235, nodename: "oss2", interval: 5})
		}
	})

	result := checkImage(t, path, c, MMPMinCheckInterval)
	assert.Equal(t, verdict.Occupied, result.Verdict)
	assert.Equal(t, "oss2", result.Holder)
	assert.Equal(t, 3, c.sleeps)
}

func TestChangeOnLastPollIsOccupied(t *testing.T) {
	spec := defaultImage()
	path := writeImage(t, spec, mmpSpec{seq: 1234, nodename: "oss1", interval: 5})

	c := newSleepHookClock(func(n int) {
		if n == WaitBudget(MMPMinCheckInterval) {
			rewriteMMP(t, path, spec, mmpSpec{seq: 1235, nodename: "oss1", interval: 5})
		}
	})

	result := checkImage(t, path, c, MMPMinCheckInterval)
	assert.Equal(t, verdict.Occupied, result.Verdict)
	assert.Equal(t, "oss1", result.Holder)
}

func TestReReadFailureIsAgain(t *testing.T) {
	spec := defaultImage()
	path := writeImage(t, spec, mmpSpec{seq: 1234, nodename: "oss1", interval: 5})

	c := newSleepHookClock(func(n int) {
		if n == 2 {
			rewriteMMP(t, path, spec, mmpSpec{magic: 0x0BADF00D, seq: 1234})
		}
	})

	result := checkImage(t, path, c, MMPMinCheckInterval)
	assert.Equal(t, verdict.Again, result.Verdict)
	assert.Equal(t, 2, c.sleeps)
}

func TestInterruptedIsAgain(t *testing.T) {
	path := writeImage(t, defaultImage(), mmpSpec{seq: 1234, nodename: "oss1", interval: 5})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := newSleepHookClock(func(n int) {
		if n == 4 {
			cancel()
		}
	})

	fs, err := Open(path)
	require.NoError(t, err)
	defer fs.Close()

	result := NewProber(c, MMPMinCheckInterval).Check(ctx, fs)
	assert.Equal(t, verdict.Again, result.Verdict)
	assert.Equal(t, 4, c.sleeps)
}
