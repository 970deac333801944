package uploader

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-resumableupload/checkpoint"
	"github.com/bitrise-io/go-resumableupload/internal"
	"github.com/bitrise-io/go-resumableupload/metrics"
	"github.com/bitrise-io/go-resumableupload/multipart"
	"github.com/bitrise-io/go-resumableupload/network"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"
)

// job is one upload attempt. store is nil when checkpointing is disabled,
// the in-memory checkpoint is still used to collect etags.
type job struct {
	filePath   string
	checkpoint *checkpoint.Checkpoint
	store      *checkpoint.Store
}

// coordinator fans the pending parts out to a bounded pool of part tasks and folds the
// results back into the checkpoint. Only the collecting goroutine touches the checkpoint.
type coordinator struct {
	client    network.MultipartClient
	os        internal.OsProxy
	logger    log.Logger
	metrics   *metrics.Collector
	threadNum int
	progress  ProgressCallback
}

// run uploads every pending part of the job and returns the completed parts in ascending part number.
// The first failure stops new parts from starting; parts already in flight are allowed to finish.
func (c *coordinator) run(ctx context.Context, j job) ([]network.CompletedPart, error) {
	cp := j.checkpoint
	pending := cp.PendingParts()
	total := len(pending)

	completedCh := make(chan partResult, total)
	failedCh := make(chan partResult, total)
	tracker := &progressTracker{}
	done := make(chan struct{})

	c.logger.Debugf("Uploading %d of %d parts with %d thread(s)", total, len(cp.Parts), c.threadNum)

	go func() {
		var g errgroup.Group
		g.SetLimit(c.threadNum)
		for _, part := range pending {
			task := &partTask{
				client:    c.client,
				os:        c.os,
				logger:    c.logger,
				metrics:   c.metrics,
				filePath:  j.filePath,
				bucket:    cp.Bucket,
				key:       cp.Key,
				uploadID:  cp.UploadID,
				part:      part,
				tracker:   tracker,
				completed: completedCh,
				failed:    failedCh,
			}
			g.Go(func() error {
				task.run(ctx)
				return nil
			})
		}
		_ = g.Wait()
		close(done)
	}()

	consumed := cp.CompletedBytes()

collect:
	for {
		select {
		case res := <-completedCh:
			if err := cp.MarkCompleted(res.part.Index, res.etag); err != nil {
				c.saveFailed(tracker, failedCh, res.part, err)
				continue
			}
			consumed += res.part.Size
			if err := c.record(j, res); err != nil {
				c.saveFailed(tracker, failedCh, res.part, err)
			}
			c.report(consumed, cp.FileSize)
		case <-done:
			break collect
		}
	}

	// Every task has returned, whatever is left in the channel was pushed before done closed.
	drained, last := c.drain(cp, completedCh, tracker, failedCh)
	consumed += drained
	if last != nil {
		if err := c.save(j); err != nil {
			c.saveFailed(tracker, failedCh, *last, err)
		}
		c.report(consumed, cp.FileSize)
	}

	snapshot := tracker.snapshot()
	c.logger.Debugf("Parts settled: %d completed, %d failed, %d skipped", snapshot.Completed, snapshot.Failed, snapshot.Launched)

	if snapshot.Failed > 0 {
		select {
		case res := <-failedCh:
			return nil, res.err
		default:
			return nil, fmt.Errorf("%d part(s) failed", snapshot.Failed)
		}
	}

	if !cp.IsComplete() {
		return nil, fmt.Errorf("upload %s has %d pending part(s) after all tasks finished", cp.UploadID, len(cp.PendingParts()))
	}

	completed := cp.CompletedParts()
	parts := make([]network.CompletedPart, 0, len(completed))
	for _, p := range completed {
		parts = append(parts, network.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}
	return parts, nil
}

// drain marks the results left in completedCh as completed without saving. It returns the bytes
// they add and the last part marked, nil if none was.
func (c *coordinator) drain(cp *checkpoint.Checkpoint, completedCh <-chan partResult, tracker *progressTracker, failedCh chan<- partResult) (int64, *multipart.Part) {
	var consumed int64
	var last *multipart.Part
	for {
		select {
		case res := <-completedCh:
			if err := cp.MarkCompleted(res.part.Index, res.etag); err != nil {
				c.saveFailed(tracker, failedCh, res.part, err)
				continue
			}
			consumed += res.part.Size
			part := res.part
			last = &part
		default:
			return consumed, last
		}
	}
}

// record persists a part already marked completed.
func (c *coordinator) record(j job, res partResult) error {
	c.logger.Debugf("Part %d uploaded (%s)", res.part.Number(), units.HumanSizeWithPrecision(float64(res.part.Size), 3))

	return c.save(j)
}

func (c *coordinator) save(j job) error {
	if j.store == nil {
		return nil
	}
	return j.store.Save(j.checkpoint)
}

// saveFailed turns a checkpoint update failure into a part failure so no new parts are started.
func (c *coordinator) saveFailed(tracker *progressTracker, failedCh chan<- partResult, part multipart.Part, err error) {
	c.logger.Warnf("Failed to record part %d: %s", part.Number(), err)
	tracker.incFailed()
	select {
	case failedCh <- partResult{part: part, err: &PartError{PartNumber: part.Number(), Err: err}}:
	default:
	}
}

func (c *coordinator) report(consumed, total int64) {
	if c.progress != nil {
		c.progress(consumed, total)
	}
}
