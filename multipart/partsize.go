package multipart

import (
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
)

// DefaultPartSize is used when no part size is configured.
const DefaultPartSize = manager.DefaultUploadPartSize

// MaxPartCount is the maximum number of parts a single multipart upload may have.
const MaxPartCount = int(manager.MaxUploadParts)

// AdjustPartSize returns the part size to use for a file of fileSize bytes.
// A non-positive partSize falls back to DefaultPartSize. When the file would need more than
// MaxPartCount parts, the part size is raised to the smallest value that fits the limit.
func AdjustPartSize(fileSize, partSize int64) int64 {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}

	if PartCount(fileSize, partSize) <= MaxPartCount {
		return partSize
	}

	limit := int64(MaxPartCount)
	adjusted := fileSize / limit
	if fileSize%limit != 0 {
		adjusted++
	}
	return adjusted
}
