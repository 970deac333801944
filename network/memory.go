package network

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryUpload struct {
	bucket string
	key    string
	parts  map[int32][]byte
	etags  map[int32]string
}

// MemoryClient is an in-process MultipartClient. Completed objects are kept in memory.
// It is meant for tests and dry runs.
type MemoryClient struct {
	// UploadPartHook runs before a part is stored; a non-nil error fails the part upload.
	UploadPartHook func(input PartInput) error
	// InitiateErr and CompleteErr fail the corresponding calls when set.
	InitiateErr error
	CompleteErr error

	mu            sync.Mutex
	uploads       map[string]*memoryUpload
	objects       map[string][]byte
	initiateCalls int
	uploadCalls   int
	completeCalls []CompleteInput
}

// NewMemoryClient ...
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		uploads: map[string]*memoryUpload{},
		objects: map[string][]byte{},
	}
}

// InitiateMultipartUpload ...
func (c *MemoryClient) InitiateMultipartUpload(_ context.Context, input InitiateInput) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.initiateCalls++
	if c.InitiateErr != nil {
		return "", c.InitiateErr
	}

	id := uuid.NewString()
	c.uploads[id] = &memoryUpload{
		bucket: input.Bucket,
		key:    input.Key,
		parts:  map[int32][]byte{},
		etags:  map[int32]string{},
	}
	return id, nil
}

// UploadPart ...
func (c *MemoryClient) UploadPart(_ context.Context, input PartInput) (string, error) {
	c.mu.Lock()
	c.uploadCalls++
	hook := c.UploadPartHook
	c.mu.Unlock()

	if hook != nil {
		if err := hook(input); err != nil {
			return "", err
		}
	}

	data, err := io.ReadAll(io.LimitReader(input.Body, input.Size))
	if err != nil {
		return "", fmt.Errorf("read part %d: %w", input.PartNumber, err)
	}
	if int64(len(data)) != input.Size {
		return "", fmt.Errorf("part %d: expected %d bytes, got %d", input.PartNumber, input.Size, len(data))
	}

	sum := md5.Sum(data)
	etag := fmt.Sprintf("%q", hex.EncodeToString(sum[:]))

	c.mu.Lock()
	defer c.mu.Unlock()

	upload, ok := c.uploads[input.UploadID]
	if !ok {
		return "", fmt.Errorf("NoSuchUpload: %s", input.UploadID)
	}
	upload.parts[input.PartNumber] = data
	upload.etags[input.PartNumber] = etag

	return etag, nil
}

// CompleteMultipartUpload ...
func (c *MemoryClient) CompleteMultipartUpload(_ context.Context, input CompleteInput) (*CompleteOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.completeCalls = append(c.completeCalls, input)
	if c.CompleteErr != nil {
		return nil, c.CompleteErr
	}

	upload, ok := c.uploads[input.UploadID]
	if !ok {
		return nil, fmt.Errorf("NoSuchUpload: %s", input.UploadID)
	}

	var object bytes.Buffer
	last := int32(0)
	for _, part := range input.Parts {
		if part.PartNumber <= last {
			return nil, fmt.Errorf("InvalidPartOrder: part %d after %d", part.PartNumber, last)
		}
		last = part.PartNumber

		if upload.etags[part.PartNumber] != part.ETag {
			return nil, fmt.Errorf("InvalidPart: part %d etag %s", part.PartNumber, part.ETag)
		}
		object.Write(upload.parts[part.PartNumber])
	}

	c.objects[objectKey(upload.bucket, upload.key)] = object.Bytes()
	delete(c.uploads, input.UploadID)

	sum := md5.Sum(object.Bytes())
	return &CompleteOutput{
		Location: fmt.Sprintf("memory://%s/%s", upload.bucket, upload.key),
		ETag:     fmt.Sprintf("%q", fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:]), len(input.Parts))),
	}, nil
}

// Object returns the content of a completed object.
func (c *MemoryClient) Object(bucket, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.objects[objectKey(bucket, key)]
	return data, ok
}

// UploadedParts returns the part numbers stored so far for an in-progress upload.
func (c *MemoryClient) UploadedParts(uploadID string) []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	upload, ok := c.uploads[uploadID]
	if !ok {
		return nil
	}

	numbers := make([]int32, 0, len(upload.parts))
	for n := range upload.parts {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers
}

// InitiateCalls ...
func (c *MemoryClient) InitiateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initiateCalls
}

// UploadPartCalls ...
func (c *MemoryClient) UploadPartCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploadCalls
}

// CompleteCalls returns the inputs of every completion call, in call order.
func (c *MemoryClient) CompleteCalls() []CompleteInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CompleteInput(nil), c.completeCalls...)
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}
