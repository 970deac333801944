package uploader

import (
	"github.com/bitrise-io/go-resumableupload/checkpoint"
	"github.com/bitrise-io/go-resumableupload/metrics"
	"github.com/bitrise-io/go-resumableupload/multipart"
)

const (
	// DefaultThreadNum is used when ThreadNum is unset or out of range.
	DefaultThreadNum = 1
	// MaxThreadNum is the largest accepted worker pool size.
	MaxThreadNum = 1024
)

// ProgressCallback receives the number of source bytes uploaded so far and the file size.
type ProgressCallback func(consumedBytes, totalBytes int64)

// Config holds configuration for the resumable uploader.
type Config struct {
	// ThreadNum is the number of parts uploaded in parallel.
	// Valid values are between 1 and 1024, anything else falls back to 1.
	ThreadNum int

	// PartSize is the requested part size in bytes. It is raised when the file would need
	// more than multipart.MaxPartCount parts.
	// Default: multipart.DefaultPartSize
	PartSize int64

	// EnableCheckpoint turns on the checkpoint file which makes an interrupted upload resumable.
	EnableCheckpoint bool

	// CheckpointPath overrides the checkpoint location.
	// Default: <file path>.cp
	CheckpointPath string

	// ProgressCallback, if set, is called after every batch of uploaded parts.
	ProgressCallback ProgressCallback

	// Headers are passed to the initiate call. Callback headers are forwarded to the completion call.
	Headers map[string]string

	// Metrics, if set, records part and upload counters.
	Metrics *metrics.Collector
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ThreadNum:        DefaultThreadNum,
		PartSize:         multipart.DefaultPartSize,
		EnableCheckpoint: true,
	}
}

// ThreadNum clamps n to the accepted worker pool size range.
func ThreadNum(n int) int {
	if n <= 0 || n > MaxThreadNum {
		return DefaultThreadNum
	}
	return n
}

func (c Config) checkpointPath(filePath string) string {
	if c.CheckpointPath != "" {
		return c.CheckpointPath
	}
	return checkpoint.DefaultPath(filePath)
}
