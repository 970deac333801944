package uploader

import (
	"sync/atomic"
)

// Snapshot is a point-in-time copy of the progress counters.
type Snapshot struct {
	// Launched counts tasks that exited without uploading because another part had already failed.
	Launched  uint32
	Completed uint32
	Failed    uint32
}

// Settled returns the number of tasks that have finished one way or another.
func (s Snapshot) Settled() uint32 {
	return s.Launched + s.Completed + s.Failed
}

// progressTracker holds the counters shared by the workers of one upload attempt.
type progressTracker struct {
	launched  atomic.Uint32
	completed atomic.Uint32
	failed    atomic.Uint32
}

func (t *progressTracker) incLaunched() {
	t.launched.Add(1)
}

func (t *progressTracker) incCompleted() {
	t.completed.Add(1)
}

func (t *progressTracker) incFailed() {
	t.failed.Add(1)
}

func (t *progressTracker) hasFailed() bool {
	return t.failed.Load() > 0
}

func (t *progressTracker) snapshot() Snapshot {
	return Snapshot{
		Launched:  t.launched.Load(),
		Completed: t.completed.Load(),
		Failed:    t.failed.Load(),
	}
}
