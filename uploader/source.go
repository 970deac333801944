package uploader

import (
	"fmt"
	"io"

	"github.com/bitrise-io/go-resumableupload/internal"
	"github.com/bitrise-io/go-resumableupload/multipart"
)

// partSource is a read-only view of one part of the source file.
// Every part task opens its own handle so parallel reads never share a file offset.
type partSource struct {
	*io.SectionReader
	file internal.File
}

func openPartSource(osProxy internal.OsProxy, path string, part multipart.Part) (*partSource, error) {
	file, err := osProxy.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}

	return &partSource{
		SectionReader: io.NewSectionReader(file, part.Offset, part.Size),
		file:          file,
	}, nil
}

// Close closes the underlying file handle.
func (s *partSource) Close() error {
	return s.file.Close()
}
