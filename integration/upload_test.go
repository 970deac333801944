//go:build integration
// +build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bitrise-io/go-resumableupload/checkpoint"
	"github.com/bitrise-io/go-resumableupload/internal/testutil"
	"github.com/bitrise-io/go-resumableupload/multipart"
	"github.com/bitrise-io/go-resumableupload/network"
	"github.com/bitrise-io/go-resumableupload/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S3 requires every part but the last to be at least 5 MiB.
const partSize = 5 * 1024 * 1024

func TestUpload(t *testing.T) {
	// Given
	ctx := context.Background()
	params := storeFromEnv(t)
	client, err := network.NewS3Client(ctx, params.S3Params, logger)
	require.NoError(t, err)

	path, data := testutil.WriteSourceFile(t, "archive.bin", 2*partSize+1024)
	key := fmt.Sprintf("integration-test/%d/archive.bin", time.Now().UnixNano())
	logger.EnableDebugLog(true)

	config := uploader.DefaultConfig()
	config.ThreadNum = 2
	config.PartSize = partSize

	// When
	result, err := uploader.New(client, config, logger).Upload(ctx, uploader.Params{
		Bucket:   params.Bucket,
		Key:      key,
		FilePath: path,
	})

	// Then
	require.NoError(t, err)
	assert.Equal(t, multipart.PartCount(int64(len(data)), partSize), result.PartCount)

	checksum, err := downloadObject(ctx, params, key)
	require.NoError(t, err)
	assert.Equal(t, checksumOf(data), checksum)
}

func TestUpload_Resume(t *testing.T) {
	// Given
	ctx := context.Background()
	params := storeFromEnv(t)
	s3Client, err := network.NewS3Client(ctx, params.S3Params, logger)
	require.NoError(t, err)
	client := &interruptingClient{MultipartClient: s3Client, partNumber: 2, enabled: true}

	path, data := testutil.WriteSourceFile(t, "archive.bin", 3*partSize)
	key := fmt.Sprintf("integration-test/%d/resumed.bin", time.Now().UnixNano())

	config := uploader.DefaultConfig()
	config.PartSize = partSize
	u := uploader.New(client, config, logger)
	uploadParams := uploader.Params{Bucket: params.Bucket, Key: key, FilePath: path}

	// When
	_, err = u.Upload(ctx, uploadParams)
	require.True(t, errors.Is(err, errInjected))

	cp, err := checkpoint.Load(checkpoint.DefaultPath(path))
	require.NoError(t, err)
	require.Len(t, cp.CompletedParts(), 1)

	client.disable()
	result, err := u.Upload(ctx, uploadParams)

	// Then
	require.NoError(t, err)
	assert.True(t, result.Resumed)
	assert.Equal(t, cp.UploadID, result.UploadID)
	assert.Equal(t, 2, result.UploadedParts)

	checksum, err := downloadObject(ctx, params, key)
	require.NoError(t, err)
	assert.Equal(t, checksumOf(data), checksum)
}
