// Package network provides the object-storage clients the resumable uploader talks to.
package network

import (
	"context"
	"io"
)

// Callback headers forwarded to the completion call.
const (
	HeaderCallback    = "x-oss-callback"
	HeaderCallbackVar = "x-oss-callback-var"
)

// InitiateInput ...
type InitiateInput struct {
	Bucket  string
	Key     string
	Headers map[string]string
}

// PartInput describes one part upload. Body is positioned at the part's first byte and yields exactly Size bytes.
type PartInput struct {
	Bucket     string
	Key        string
	UploadID   string
	PartNumber int32
	Body       io.ReadSeeker
	Size       int64
}

// CompletedPart ...
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// CompleteInput ...
type CompleteInput struct {
	Bucket   string
	Key      string
	UploadID string
	// Parts are ordered by part number.
	Parts []CompletedPart
	// CallbackHeaders are optional server-side callback settings.
	CallbackHeaders map[string]string
}

// CompleteOutput ...
type CompleteOutput struct {
	Location string
	ETag     string
	Body     []byte
}

// MultipartClient is the subset of an object-storage API needed for a multipart upload.
// Implementations must be safe for concurrent UploadPart calls.
type MultipartClient interface {
	InitiateMultipartUpload(ctx context.Context, input InitiateInput) (string, error)
	UploadPart(ctx context.Context, input PartInput) (string, error)
	CompleteMultipartUpload(ctx context.Context, input CompleteInput) (*CompleteOutput, error)
}

// CallbackHeaders picks the completion callback headers out of the request headers.
// It returns nil if no callback is configured.
func CallbackHeaders(headers map[string]string) map[string]string {
	callback, ok := headers[HeaderCallback]
	if !ok || callback == "" {
		return nil
	}

	cb := map[string]string{HeaderCallback: callback}
	if callbackVar, ok := headers[HeaderCallbackVar]; ok && callbackVar != "" {
		cb[HeaderCallbackVar] = callbackVar
	}
	return cb
}
