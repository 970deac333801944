//go:build integration
// +build integration

package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-resumableupload/network"
	"github.com/bitrise-io/go-utils/v2/log"
)

var logger = log.NewLogger()

var errInjected = errors.New("injected part failure")

type storeParams struct {
	network.S3Params
	Bucket string
}

// storeFromEnv reads the S3 compatible store used by the tests, e.g. a local MinIO.
func storeFromEnv(t *testing.T) storeParams {
	params := storeParams{
		S3Params: network.S3Params{
			Region:          os.Getenv("AWS_REGION"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Endpoint:        os.Getenv("RESUMABLE_UPLOAD_ENDPOINT"),
			UsePathStyle:    os.Getenv("RESUMABLE_UPLOAD_ENDPOINT") != "",
		},
		Bucket: os.Getenv("RESUMABLE_UPLOAD_BUCKET"),
	}
	if params.Bucket == "" || params.Region == "" {
		t.Skip("RESUMABLE_UPLOAD_BUCKET and AWS_REGION are required for integration tests")
	}
	return params
}

func checksumOf(bytes []byte) string {
	hash := sha256.New()
	hash.Write(bytes)
	return hex.EncodeToString(hash.Sum(nil))
}

// downloadObject downloads the object and returns its SHA256 checksum.
func downloadObject(ctx context.Context, params storeParams, key string) (string, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(params.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(params.AccessKeyID, params.SecretAccessKey, "")),
	)
	if err != nil {
		return "", err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
		o.UsePathStyle = params.UsePathStyle
	})

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(params.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	defer out.Body.Close() //nolint:errcheck

	hash := sha256.New()
	if _, err := io.Copy(hash, out.Body); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// interruptingClient fails one part number until enabled is cleared, simulating a dropped connection.
type interruptingClient struct {
	network.MultipartClient
	partNumber int32

	mu      sync.Mutex
	enabled bool
}

func (c *interruptingClient) UploadPart(ctx context.Context, input network.PartInput) (string, error) {
	c.mu.Lock()
	fail := c.enabled && input.PartNumber == c.partNumber
	c.mu.Unlock()

	if fail {
		return "", errInjected
	}
	return c.MultipartClient.UploadPart(ctx, input)
}

func (c *interruptingClient) disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}
