package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// FileChecker allows chaining multiple checks on a file path.
type FileChecker struct {
	Path   string
	Checks []func(string) error
}

// NewFileChecker creates a FileChecker for the given path.
func NewFileChecker(path string) *FileChecker {
	return &FileChecker{Path: path, Checks: []func(string) error{}}
}

// Check runs all checks on the path and joins every failure.
func (fc *FileChecker) Check() error {
	var errs []error
	for _, check := range fc.Checks {
		if err := check(fc.Path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsFile adds a check that the path is a regular file.
func (fc *FileChecker) IsFile() *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		info, err := getInfo(path)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("expected regular file: %s", path)
		}
		return nil
	})
	return fc
}

// NotExists adds a check that nothing exists at the path.
func (fc *FileChecker) NotExists() *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		_, err := os.Lstat(path)
		if err == nil {
			return fmt.Errorf("expected %s to not exist", path)
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("lstat %s: %w", path, err)
		}
		return nil
	})
	return fc
}

// Content adds a check that the file at the path has the specified content.
func (fc *FileChecker) Content(content []byte) *FileChecker {
	fc.Checks = append(fc.Checks, func(path string) error {
		got, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !bytes.Equal(got, content) {
			return fmt.Errorf("file %s content mismatch: want %d bytes, got %d bytes", path, len(content), len(got))
		}
		return nil
	})
	return fc
}

func getInfo(path string) (os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path does not exist: %s", path)
		}
		return nil, fmt.Errorf("lstat %s: %w", path, err)
	}
	return info, nil
}
