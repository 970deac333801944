// Package multipart plans how a local file is split into the parts of a multipart upload.
package multipart

// Part is a contiguous byte range of the source file uploaded as one independent unit.
type Part struct {
	Index     int    `yaml:"index"`
	Offset    int64  `yaml:"offset"`
	Size      int64  `yaml:"size"`
	Completed bool   `yaml:"completed"`
	ETag      string `yaml:"etag"`
}

// Number returns the 1-based part number used by the storage API.
func (p Part) Number() int32 {
	return int32(p.Index + 1)
}

// End returns the offset right after the last byte of the part.
func (p Part) End() int64 {
	return p.Offset + p.Size
}

// PartCount returns ceil(fileSize/partSize).
func PartCount(fileSize, partSize int64) int {
	if fileSize <= 0 || partSize <= 0 {
		return 0
	}

	n := fileSize / partSize
	if fileSize%partSize != 0 {
		n++
	}
	return int(n)
}

// PlanParts splits [0, fileSize) into parts of partSize bytes; the last part holds the remainder.
// partSize must be positive.
func PlanParts(fileSize, partSize int64) []Part {
	count := PartCount(fileSize, partSize)
	parts := make([]Part, 0, count)

	for i := 0; i < count; i++ {
		offset := int64(i) * partSize
		size := partSize
		if fileSize-offset < size {
			size = fileSize - offset
		}

		parts = append(parts, Part{
			Index:  i,
			Offset: offset,
			Size:   size,
		})
	}

	return parts
}
