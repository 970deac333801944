package uploader

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-resumableupload/internal"
	"github.com/bitrise-io/go-resumableupload/metrics"
	"github.com/bitrise-io/go-resumableupload/multipart"
	"github.com/bitrise-io/go-resumableupload/network"
	"github.com/bitrise-io/go-utils/v2/log"
)

// PartError is returned when a single part could not be uploaded or its progress could not be recorded.
type PartError struct {
	PartNumber int32
	Err        error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("part %d: %v", e.PartNumber, e.Err)
}

func (e *PartError) Unwrap() error {
	return e.Err
}

type partResult struct {
	part multipart.Part
	etag string
	err  error
}

// partTask uploads one part. It settles exactly one tracker counter and, unless it was
// short-circuited, pushes exactly one result.
type partTask struct {
	client   network.MultipartClient
	os       internal.OsProxy
	logger   log.Logger
	metrics  *metrics.Collector
	filePath string
	bucket   string
	key      string
	uploadID string
	part     multipart.Part

	tracker   *progressTracker
	completed chan<- partResult
	failed    chan<- partResult
}

func (t *partTask) run(ctx context.Context) {
	if t.tracker.hasFailed() {
		t.logger.Debugf("Skipping part %d, a previous part failed", t.part.Number())
		t.metrics.PartSkipped()
		t.tracker.incLaunched()
		return
	}

	etag, err := t.upload(ctx)
	if err != nil {
		t.logger.Warnf("Part %d failed: %s", t.part.Number(), err)
		t.metrics.PartFailed()
		t.tracker.incFailed()
		t.failed <- partResult{
			part: t.part,
			err:  &PartError{PartNumber: t.part.Number(), Err: err},
		}
		return
	}

	t.metrics.PartUploaded(t.part.Size)
	t.tracker.incCompleted()
	t.completed <- partResult{part: t.part, etag: etag}
}

func (t *partTask) upload(ctx context.Context) (string, error) {
	source, err := openPartSource(t.os, t.filePath, t.part)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := source.Close(); err != nil {
			t.logger.Warnf("Failed to close source file: %s", err)
		}
	}()

	return t.client.UploadPart(ctx, network.PartInput{
		Bucket:     t.bucket,
		Key:        t.key,
		UploadID:   t.uploadID,
		PartNumber: t.part.Number(),
		Body:       source,
		Size:       t.part.Size,
	})
}
