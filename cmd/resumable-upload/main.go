// Command resumable-upload uploads files as multipart uploads, resuming interrupted uploads from
// their checkpoint files. It is configured with RESUMABLE_UPLOAD_* environment variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/bitrise-io/go-resumableupload/metrics"
	"github.com/bitrise-io/go-resumableupload/network"
	"github.com/bitrise-io/go-resumableupload/uploader"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logger := log.NewLogger()
	if err := run(context.Background(), env.NewRepository(), logger); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envRepo env.Repository, logger log.Logger) error {
	cfg, err := parseConfig(envRepo)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.EnableDebugLog(cfg.Verbose)

	items, err := expandPaths(cfg.Paths, cfg.Prefix, pathutil.NewPathModifier(), logger)
	if err != nil {
		return err
	}
	logger.Infof("%d file(s) to upload to %s using the %s backend", len(items), cfg.Bucket, cfg.Backend)

	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.EnableCheckpoint && cfg.CheckpointDir != "" {
		if err := os.MkdirAll(cfg.CheckpointDir, 0755); err != nil {
			return fmt.Errorf("create checkpoint directory: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	collector, err := metrics.New("", registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	for _, item := range items {
		uploaderConfig := cfg.uploaderConfig(item)
		uploaderConfig.Metrics = collector
		uploaderConfig.ProgressCallback = progressLogger(item.FilePath, logger)

		u := uploader.New(client, uploaderConfig, logger)
		if err := uploadWithRetry(ctx, u, cfg, item, logger); err != nil {
			return fmt.Errorf("upload %s: %w", item.FilePath, err)
		}
	}

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		logger.Debugf("Metrics written to %s", cfg.MetricsFile)
	}

	return nil
}

func newClient(ctx context.Context, cfg config, logger log.Logger) (network.MultipartClient, error) {
	switch cfg.Backend {
	case backendAPI:
		return network.NewAPIClient(cfg.APIBaseURL, cfg.APIToken, logger), nil
	case backendMemory:
		logger.Warnf("Using the in-memory backend, nothing leaves this process")
		return network.NewMemoryClient(), nil
	default:
		client, err := network.NewS3Client(ctx, network.S3Params{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretKey,
			Endpoint:        cfg.Endpoint,
			UsePathStyle:    cfg.UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		return client, nil
	}
}

// uploadWithRetry retries the whole upload. With checkpointing enabled every retry resumes
// from the parts already uploaded.
func uploadWithRetry(ctx context.Context, u *uploader.Uploader, cfg config, item uploadItem, logger log.Logger) error {
	return retry.Times(cfg.Retries).Wait(cfg.RetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			logger.Warnf("Retrying upload of %s (attempt %d)", item.FilePath, attempt+1)
		}

		result, err := u.Upload(ctx, uploader.Params{
			Bucket:   cfg.Bucket,
			Key:      item.Key,
			FilePath: item.FilePath,
		})
		if err != nil {
			if errors.Is(err, uploader.ErrSourceFile) {
				return err, true
			}
			logger.Warnf("Upload attempt failed: %s", err)
			return err, false
		}

		if result.Resumed {
			logger.Infof("Resumed upload %s, uploaded %d of %d parts", result.UploadID, result.UploadedParts, result.PartCount)
		}
		return nil, false
	})
}

// progressLogger logs every 10% of progress.
func progressLogger(filePath string, logger log.Logger) uploader.ProgressCallback {
	nextStep := int64(0)
	return func(consumed, total int64) {
		if total <= 0 {
			return
		}
		step := consumed * 10 / total
		if step < nextStep {
			return
		}
		nextStep = step + 1
		logger.Printf("%s: %s / %s (%d%%)", filePath,
			units.HumanSizeWithPrecision(float64(consumed), 3), units.HumanSizeWithPrecision(float64(total), 3), step*10)
	}
}
