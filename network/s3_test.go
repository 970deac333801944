package network

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3API struct {
	mock.Mock
}

func (m *mockS3API) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.CreateMultipartUploadOutput)
	return out, args.Error(1)
}

func (m *mockS3API) UploadPart(ctx context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.UploadPartOutput)
	return out, args.Error(1)
}

func (m *mockS3API) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	args := m.Called(ctx, params, len(optFns))
	out, _ := args.Get(0).(*s3.CompleteMultipartUploadOutput)
	return out, args.Error(1)
}

func TestS3Client_InitiateMultipartUpload(t *testing.T) {
	api := new(mockS3API)
	api.On("CreateMultipartUpload", mock.Anything, mock.MatchedBy(func(in *s3.CreateMultipartUploadInput) bool {
		return aws.ToString(in.Bucket) == "bucket" &&
			aws.ToString(in.Key) == "dir/archive.tzst" &&
			aws.ToString(in.ContentType) == "application/zstd" &&
			in.Metadata["origin"] == "ci"
	})).Return(&s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil)

	client := newS3Client(api, log.NewLogger())
	id, err := client.InitiateMultipartUpload(context.Background(), InitiateInput{
		Bucket: "bucket",
		Key:    "dir/archive.tzst",
		Headers: map[string]string{
			"Content-Type":      "application/zstd",
			"X-Amz-Meta-Origin": "ci",
			HeaderCallback:      "eyJjYWxsYmFja1VybCI6Imh0dHA6Ly9leGFtcGxlLmNvbSJ9",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "upload-1", id)
	api.AssertExpectations(t)
}

func TestS3Client_InitiateMultipartUpload_MissingID(t *testing.T) {
	api := new(mockS3API)
	api.On("CreateMultipartUpload", mock.Anything, mock.Anything).Return(&s3.CreateMultipartUploadOutput{}, nil)

	_, err := newS3Client(api, log.NewLogger()).InitiateMultipartUpload(context.Background(), InitiateInput{Bucket: "b", Key: "k"})
	assert.Error(t, err)
}

func TestS3Client_UploadPart(t *testing.T) {
	body := bytes.NewReader([]byte("part-data"))

	api := new(mockS3API)
	api.On("UploadPart", mock.Anything, mock.MatchedBy(func(in *s3.UploadPartInput) bool {
		return aws.ToString(in.UploadId) == "upload-1" &&
			aws.ToInt32(in.PartNumber) == 2 &&
			aws.ToInt64(in.ContentLength) == 9 &&
			in.Body == body
	})).Return(&s3.UploadPartOutput{ETag: aws.String(`"etag-2"`)}, nil)

	etag, err := newS3Client(api, log.NewLogger()).UploadPart(context.Background(), PartInput{
		Bucket:     "bucket",
		Key:        "key",
		UploadID:   "upload-1",
		PartNumber: 2,
		Body:       body,
		Size:       9,
	})

	require.NoError(t, err)
	assert.Equal(t, `"etag-2"`, etag)
	api.AssertExpectations(t)
}

func TestS3Client_UploadPart_APIError(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "NoSuchUpload", Message: "The specified upload does not exist"}

	api := new(mockS3API)
	api.On("UploadPart", mock.Anything, mock.Anything).Return(nil, apiErr)

	_, err := newS3Client(api, log.NewLogger()).UploadPart(context.Background(), PartInput{PartNumber: 3, Body: bytes.NewReader(nil)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload part 3: NoSuchUpload")
	assert.True(t, errors.Is(err, apiErr))
}

func TestS3Client_CompleteMultipartUpload(t *testing.T) {
	api := new(mockS3API)
	api.On("CompleteMultipartUpload", mock.Anything, mock.MatchedBy(func(in *s3.CompleteMultipartUploadInput) bool {
		parts := in.MultipartUpload.Parts
		return len(parts) == 2 &&
			aws.ToInt32(parts[0].PartNumber) == 1 && aws.ToString(parts[0].ETag) == "a" &&
			aws.ToInt32(parts[1].PartNumber) == 2 && aws.ToString(parts[1].ETag) == "b"
	}), 2).Return(&s3.CompleteMultipartUploadOutput{
		Location: aws.String("https://bucket.s3.amazonaws.com/key"),
		ETag:     aws.String(`"abc-2"`),
	}, nil)

	out, err := newS3Client(api, log.NewLogger()).CompleteMultipartUpload(context.Background(), CompleteInput{
		Bucket:   "bucket",
		Key:      "key",
		UploadID: "upload-1",
		Parts:    []CompletedPart{{PartNumber: 1, ETag: "a"}, {PartNumber: 2, ETag: "b"}},
		CallbackHeaders: map[string]string{
			HeaderCallback:    "cb",
			HeaderCallbackVar: "vars",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3.amazonaws.com/key", out.Location)
	assert.Equal(t, `"abc-2"`, out.ETag)
	api.AssertExpectations(t)
}

func Test_loadAWSCredentials(t *testing.T) {
	_, err := loadAWSCredentials(context.Background(), "", "id", "secret", log.NewLogger())
	assert.Error(t, err)

	cfg, err := loadAWSCredentials(context.Background(), "eu-west-1", "id", "secret", log.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id", creds.AccessKeyID)
}

func TestCallbackHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    map[string]string
	}{
		{name: "no headers", headers: nil, want: nil},
		{name: "no callback", headers: map[string]string{HeaderCallbackVar: "v"}, want: nil},
		{
			name:    "callback only",
			headers: map[string]string{HeaderCallback: "cb", "Content-Type": "text/plain"},
			want:    map[string]string{HeaderCallback: "cb"},
		},
		{
			name:    "callback with vars",
			headers: map[string]string{HeaderCallback: "cb", HeaderCallbackVar: "v"},
			want:    map[string]string{HeaderCallback: "cb", HeaderCallbackVar: "v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CallbackHeaders(tt.headers))
		})
	}
}
