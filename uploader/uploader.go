// Package uploader uploads a local file as a multipart upload and, with checkpointing enabled,
// resumes an interrupted upload where it left off.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-resumableupload/checkpoint"
	"github.com/bitrise-io/go-resumableupload/internal"
	"github.com/bitrise-io/go-resumableupload/multipart"
	"github.com/bitrise-io/go-resumableupload/network"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

var (
	// ErrSourceFile is returned when the source file can not be used.
	ErrSourceFile = errors.New("source file")
	// ErrInitiate is returned when a new multipart upload could not be started.
	ErrInitiate = errors.New("initiate multipart upload")
	// ErrComplete is returned when the completion call failed. The checkpoint is kept.
	ErrComplete = errors.New("complete multipart upload")
)

// Params identifies the file to upload and its destination.
type Params struct {
	Bucket   string
	Key      string
	FilePath string
}

// Result describes a finished upload.
type Result struct {
	UploadID string
	// Resumed is true when the upload continued from a checkpoint.
	Resumed bool
	// PartCount is the total number of parts of the object.
	PartCount int
	// UploadedParts is the number of parts sent during this call.
	UploadedParts int
	Output        *network.CompleteOutput
}

// Uploader ...
type Uploader struct {
	client network.MultipartClient
	config Config
	logger log.Logger
	os     internal.OsProxy
}

// New creates an Uploader using the given multipart client.
func New(client network.MultipartClient, config Config, logger log.Logger) *Uploader {
	return newUploader(client, config, logger, internal.RealOS{})
}

func newUploader(client network.MultipartClient, config Config, logger log.Logger, osProxy internal.OsProxy) *Uploader {
	return &Uploader{
		client: client,
		config: config,
		logger: logger,
		os:     osProxy,
	}
}

// Upload uploads params.FilePath to params.Bucket/params.Key.
func (u *Uploader) Upload(ctx context.Context, params Params) (result *Result, err error) {
	defer func() {
		u.config.Metrics.UploadFinished(err)
	}()

	info, err := u.os.Stat(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceFile, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceFile, params.FilePath)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSourceFile, params.FilePath)
	}

	var store *checkpoint.Store
	var cp *checkpoint.Checkpoint
	if u.config.EnableCheckpoint {
		store = checkpoint.NewStore(u.config.checkpointPath(params.FilePath))
		defer func() {
			if err := store.Close(); err != nil {
				u.logger.Warnf("Failed to close checkpoint: %s", err)
			}
		}()

		cp = u.resumable(store, params, info.Size(), info.ModTime())
	}

	resumed := cp != nil
	if resumed {
		u.config.Metrics.UploadResumed()
		u.logger.Infof("Resuming upload %s: %d of %d parts pending", cp.UploadID, len(cp.PendingParts()), len(cp.Parts))
	} else {
		partSize := multipart.AdjustPartSize(info.Size(), u.config.PartSize)

		uploadID, err := u.client.InitiateMultipartUpload(ctx, network.InitiateInput{
			Bucket:  params.Bucket,
			Key:     params.Key,
			Headers: u.config.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInitiate, err)
		}

		cp = checkpoint.New(params.FilePath, info, params.Bucket, params.Key, uploadID, partSize)
		u.logger.Infof("Started upload %s: %s in %d parts of %s",
			uploadID, units.HumanSize(float64(info.Size())), len(cp.Parts), units.BytesSize(float64(partSize)))

		if store != nil {
			if err := store.Save(cp); err != nil {
				return nil, err
			}
		}
	}

	pending := len(cp.PendingParts())
	c := &coordinator{
		client:    u.client,
		os:        u.os,
		logger:    u.logger,
		metrics:   u.config.Metrics,
		threadNum: ThreadNum(u.config.ThreadNum),
		progress:  u.config.ProgressCallback,
	}
	parts, err := c.run(ctx, job{filePath: params.FilePath, checkpoint: cp, store: store})
	if err != nil {
		return nil, err
	}

	output, err := u.client.CompleteMultipartUpload(ctx, network.CompleteInput{
		Bucket:          cp.Bucket,
		Key:             cp.Key,
		UploadID:        cp.UploadID,
		Parts:           parts,
		CallbackHeaders: network.CallbackHeaders(u.config.Headers),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComplete, err)
	}

	if store != nil {
		if err := store.Remove(); err != nil {
			u.logger.Warnf("Failed to remove checkpoint %s: %s", store.Path(), err)
		}
	}

	u.logger.Donef("Uploaded %s to %s/%s", params.FilePath, cp.Bucket, cp.Key)

	return &Result{
		UploadID:      cp.UploadID,
		Resumed:       resumed,
		PartCount:     len(cp.Parts),
		UploadedParts: pending,
		Output:        output,
	}, nil
}

// resumable returns the checkpoint to continue from, or nil when a new upload has to be started.
// An unusable checkpoint file is removed.
func (u *Uploader) resumable(store *checkpoint.Store, params Params, size int64, modTime time.Time) *checkpoint.Checkpoint {
	if !store.Exists() {
		return nil
	}

	cp, err := store.Load()
	switch {
	case err != nil:
		u.logger.Warnf("Discarding unreadable checkpoint: %s", err)
	case !cp.IsValid(size, modTime):
		u.logger.Infof("Source file changed since checkpoint %s was written, starting a new upload", store.Path())
		cp = nil
	case cp.Bucket != params.Bucket || cp.Key != params.Key:
		u.logger.Infof("Checkpoint %s belongs to %s/%s, starting a new upload", store.Path(), cp.Bucket, cp.Key)
		cp = nil
	default:
		return cp
	}

	if err := store.Remove(); err != nil {
		u.logger.Warnf("Failed to remove stale checkpoint %s: %s", store.Path(), err)
	}
	return nil
}
