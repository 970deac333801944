package checkpoint

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/bitrise-io/go-resumableupload/internal"
	"github.com/bitrise-io/go-resumableupload/multipart"
	"gopkg.in/yaml.v3"
)

// PathSuffix is appended to the source file path to derive the default checkpoint path.
const PathSuffix = ".cp"

// DefaultPath returns the checkpoint path used for filePath when none is configured.
func DefaultPath(filePath string) string {
	return filePath + PathSuffix
}

type document struct {
	Type        Type             `yaml:"type"`
	FilePath    string           `yaml:"file_path"`
	FileSize    int64            `yaml:"file_size"`
	FileModTime int64            `yaml:"file_mod_time_unix_nano"`
	Bucket      string           `yaml:"bucket,omitempty"`
	Key         string           `yaml:"key,omitempty"`
	UploadID    string           `yaml:"upload_id"`
	PartSize    int64            `yaml:"part_size"`
	Parts       []multipart.Part `yaml:"parts"`
}

func encode(cp *Checkpoint) ([]byte, error) {
	return yaml.Marshal(document{
		Type:        cp.Type,
		FilePath:    cp.FilePath,
		FileSize:    cp.FileSize,
		FileModTime: cp.FileModTime.UnixNano(),
		Bucket:      cp.Bucket,
		Key:         cp.Key,
		UploadID:    cp.UploadID,
		PartSize:    cp.PartSize,
		Parts:       cp.Parts,
	})
}

func decode(data []byte) (*Checkpoint, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	cp := &Checkpoint{
		Type:        doc.Type,
		FilePath:    doc.FilePath,
		FileSize:    doc.FileSize,
		FileModTime: time.Unix(0, doc.FileModTime),
		Bucket:      doc.Bucket,
		Key:         doc.Key,
		UploadID:    doc.UploadID,
		PartSize:    doc.PartSize,
		Parts:       doc.Parts,
	}
	if cp.Parts == nil {
		cp.Parts = []multipart.Part{}
	}
	if err := cp.validate(); err != nil {
		return nil, err
	}
	return cp, nil
}

// Store reads and writes the checkpoint file of one upload attempt.
// The file is opened on the first Save and kept open until Close or Remove.
// Save truncates and rewrites the file in place: a crash in the middle of a Save can leave
// a corrupt file behind, which Load reports as ErrMalformed.
type Store struct {
	os   internal.OsProxy
	path string
	file internal.File
}

// NewStore creates a Store for the checkpoint file at path.
func NewStore(path string) *Store {
	return newStore(internal.RealOS{}, path)
}

func newStore(osProxy internal.OsProxy, path string) *Store {
	return &Store{os: osProxy, path: path}
}

// Exists reports whether a checkpoint file exists at path.
func Exists(path string) bool {
	return NewStore(path).Exists()
}

// Load reads and parses the checkpoint file at path.
func Load(path string) (*Checkpoint, error) {
	return NewStore(path).Load()
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the checkpoint file exists.
func (s *Store) Exists() bool {
	info, err := s.os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Load reads and parses the checkpoint file.
func (s *Store) Load() (*Checkpoint, error) {
	f, err := s.os.Open(s.path)
	if err != nil {
		return nil, newError(ErrOpen, s.path, err)
	}
	defer f.Close() //nolint:errcheck

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, newError(ErrRead, s.path, err)
	}

	cp, err := decode(data)
	if err != nil {
		return nil, newError(ErrMalformed, s.path, err)
	}
	return cp, nil
}

// Save serializes the checkpoint, truncates the file to empty, writes and flushes it.
func (s *Store) Save(cp *Checkpoint) error {
	data, err := encode(cp)
	if err != nil {
		return newError(ErrEncode, s.path, err)
	}

	if s.file == nil {
		f, err := s.os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return newError(ErrOpen, s.path, err)
		}
		s.file = f
	}

	if err := s.file.Truncate(0); err != nil {
		return newError(ErrTruncate, s.path, err)
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return newError(ErrTruncate, s.path, err)
	}

	if _, err := s.file.Write(data); err != nil {
		return newError(ErrWrite, s.path, err)
	}

	if err := s.file.Sync(); err != nil {
		return newError(ErrFlush, s.path, err)
	}

	return nil
}

// Close releases the open checkpoint file, if any.
func (s *Store) Close() error {
	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil
	return err
}

// Remove closes and deletes the checkpoint file. A missing file is not an error.
func (s *Store) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}

	if err := s.os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
