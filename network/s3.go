package network

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/bitrise-io/go-utils/v2/log"
)

const metadataHeaderPrefix = "x-amz-meta-"

// S3Params ...
type S3Params struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the AWS endpoint, for S3 compatible stores.
	Endpoint     string
	UsePathStyle bool
}

type s3API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
}

// S3Client implements MultipartClient on top of the AWS S3 API.
type S3Client struct {
	api    s3API
	logger log.Logger
}

// NewS3Client creates an S3Client. Static credentials are used when provided,
// otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, params S3Params, logger log.Logger) (*S3Client, error) {
	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
		o.UsePathStyle = params.UsePathStyle
	})

	return newS3Client(client, logger), nil
}

func newS3Client(api s3API, logger log.Logger) *S3Client {
	return &S3Client{api: api, logger: logger}
}

// InitiateMultipartUpload ...
func (c *S3Client) InitiateMultipartUpload(ctx context.Context, input InitiateInput) (string, error) {
	params := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(input.Bucket),
		Key:    aws.String(input.Key),
	}
	c.applyHeaders(params, input.Headers)

	resp, err := c.api.CreateMultipartUpload(ctx, params)
	if err != nil {
		return "", describeAPIError("create multipart upload", err)
	}
	if resp.UploadId == nil || *resp.UploadId == "" {
		return "", fmt.Errorf("create multipart upload: no upload id in response")
	}

	return *resp.UploadId, nil
}

// UploadPart ...
func (c *S3Client) UploadPart(ctx context.Context, input PartInput) (string, error) {
	resp, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(input.Bucket),
		Key:           aws.String(input.Key),
		UploadId:      aws.String(input.UploadID),
		PartNumber:    aws.Int32(input.PartNumber),
		Body:          input.Body,
		ContentLength: aws.Int64(input.Size),
	})
	if err != nil {
		return "", describeAPIError(fmt.Sprintf("upload part %d", input.PartNumber), err)
	}
	if resp.ETag == nil || *resp.ETag == "" {
		return "", fmt.Errorf("upload part %d: no ETag in response", input.PartNumber)
	}

	return *resp.ETag, nil
}

// CompleteMultipartUpload ...
func (c *S3Client) CompleteMultipartUpload(ctx context.Context, input CompleteInput) (*CompleteOutput, error) {
	parts := make([]types.CompletedPart, 0, len(input.Parts))
	for _, part := range input.Parts {
		parts = append(parts, types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(part.PartNumber),
		})
	}

	var optFns []func(*s3.Options)
	for k, v := range input.CallbackHeaders {
		header, value := k, v
		optFns = append(optFns, func(o *s3.Options) {
			o.APIOptions = append(o.APIOptions, smithyhttp.AddHeaderValue(header, value))
		})
	}

	resp, err := c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(input.Bucket),
		Key:             aws.String(input.Key),
		UploadId:        aws.String(input.UploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	}, optFns...)
	if err != nil {
		return nil, describeAPIError("complete multipart upload", err)
	}

	return &CompleteOutput{
		Location: aws.ToString(resp.Location),
		ETag:     aws.ToString(resp.ETag),
	}, nil
}

func (c *S3Client) applyHeaders(params *s3.CreateMultipartUploadInput, headers map[string]string) {
	for k, v := range headers {
		switch name := strings.ToLower(k); {
		case name == "content-type":
			params.ContentType = aws.String(v)
		case name == "content-encoding":
			params.ContentEncoding = aws.String(v)
		case name == "content-disposition":
			params.ContentDisposition = aws.String(v)
		case name == "cache-control":
			params.CacheControl = aws.String(v)
		case strings.HasPrefix(name, metadataHeaderPrefix):
			if params.Metadata == nil {
				params.Metadata = map[string]string{}
			}
			params.Metadata[strings.TrimPrefix(name, metadataHeaderPrefix)] = v
		case name == HeaderCallback || name == HeaderCallbackVar:
			// only used by the completion call
		default:
			c.logger.Debugf("Header %s is not supported by the S3 client, skipping", k)
		}
	}
}

func describeAPIError(op string, err error) error {
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		return fmt.Errorf("%s: %s (%s): %w", op, apiError.ErrorCode(), apiError.ErrorMessage(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
