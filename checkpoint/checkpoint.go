// Package checkpoint persists the progress of a multipart upload so an interrupted upload can be resumed.
package checkpoint

import (
	"fmt"
	"os"
	"time"

	"github.com/bitrise-io/go-resumableupload/multipart"
)

// Type identifies what kind of transfer a checkpoint belongs to.
type Type string

// TypeUpload marks a multipart upload checkpoint.
const TypeUpload Type = "upload"

// Checkpoint is the durable record of an in-progress multipart upload.
// It is bound to the source file's size and modification time.
type Checkpoint struct {
	Type        Type
	FilePath    string
	FileSize    int64
	FileModTime time.Time
	Bucket      string
	Key         string
	UploadID    string
	PartSize    int64
	Parts       []multipart.Part
}

// CompletedPart pairs a part number with the etag returned for it.
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// New builds a checkpoint with every part of the file pending.
func New(filePath string, info os.FileInfo, bucket, key, uploadID string, partSize int64) *Checkpoint {
	return &Checkpoint{
		Type:        TypeUpload,
		FilePath:    filePath,
		FileSize:    info.Size(),
		FileModTime: info.ModTime(),
		Bucket:      bucket,
		Key:         key,
		UploadID:    uploadID,
		PartSize:    partSize,
		Parts:       multipart.PlanParts(info.Size(), partSize),
	}
}

// IsValid reports whether the checkpoint still describes a file with the given size and modification time.
func (cp *Checkpoint) IsValid(fileSize int64, fileModTime time.Time) bool {
	return cp.FileSize == fileSize && cp.FileModTime.Equal(fileModTime)
}

// PendingParts returns the parts not yet uploaded, in index order.
func (cp *Checkpoint) PendingParts() []multipart.Part {
	pending := make([]multipart.Part, 0, len(cp.Parts))
	for _, part := range cp.Parts {
		if !part.Completed {
			pending = append(pending, part)
		}
	}
	return pending
}

// MarkCompleted records the etag of an uploaded part. It has to be called before the matching Save.
func (cp *Checkpoint) MarkCompleted(index int, etag string) error {
	if index < 0 || index >= len(cp.Parts) {
		return fmt.Errorf("part index %d out of range [0, %d)", index, len(cp.Parts))
	}

	cp.Parts[index].Completed = true
	cp.Parts[index].ETag = etag
	return nil
}

// CompletedBytes returns the number of source bytes already uploaded.
func (cp *Checkpoint) CompletedBytes() int64 {
	var n int64
	for _, part := range cp.Parts {
		if part.Completed {
			n += part.Size
		}
	}
	return n
}

// IsComplete returns true if every part has been uploaded.
func (cp *Checkpoint) IsComplete() bool {
	for _, part := range cp.Parts {
		if !part.Completed {
			return false
		}
	}
	return true
}

// CompletedParts returns the part number and etag of every completed part, ordered by part number.
func (cp *Checkpoint) CompletedParts() []CompletedPart {
	parts := make([]CompletedPart, 0, len(cp.Parts))
	for _, part := range cp.Parts {
		if part.Completed {
			parts = append(parts, CompletedPart{PartNumber: part.Number(), ETag: part.ETag})
		}
	}
	return parts
}

func (cp *Checkpoint) validate() error {
	if cp.Type != TypeUpload {
		return fmt.Errorf("unexpected checkpoint type %q", cp.Type)
	}
	if cp.UploadID == "" {
		return fmt.Errorf("missing upload id")
	}
	if cp.FileSize < 0 {
		return fmt.Errorf("negative file size %d", cp.FileSize)
	}
	if cp.PartSize <= 0 {
		return fmt.Errorf("invalid part size %d", cp.PartSize)
	}

	count := multipart.PartCount(cp.FileSize, cp.PartSize)
	if count > multipart.MaxPartCount {
		return fmt.Errorf("file size %d with part size %d needs %d parts, more than %d",
			cp.FileSize, cp.PartSize, count, multipart.MaxPartCount)
	}
	if len(cp.Parts) != count {
		return fmt.Errorf("expected %d parts, got %d", count, len(cp.Parts))
	}
	for i, part := range cp.Parts {
		offset := int64(i) * cp.PartSize
		size := cp.PartSize
		if rest := cp.FileSize - offset; rest < size {
			size = rest
		}
		if part.Index != i || part.Offset != offset || part.Size != size {
			return fmt.Errorf("part %d does not match the file layout (index=%d offset=%d size=%d)",
				i, part.Index, part.Offset, part.Size)
		}
		if part.Completed && part.ETag == "" {
			return fmt.Errorf("completed part %d has no etag", part.Index)
		}
	}

	return nil
}
