package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// uploadItem is a local file and the object key it is uploaded to.
type uploadItem struct {
	FilePath string
	Key      string
}

// expandPaths resolves plain paths and ** patterns into regular files. A pattern's matches keep
// their path relative to the pattern base in the object key, plain paths use their base name.
func expandPaths(paths []string, prefix string, pathModifier pathutil.PathModifier, logger log.Logger) ([]uploadItem, error) {
	var items []uploadItem
	seen := map[string]bool{}
	add := func(filePath, key string) {
		if seen[filePath] {
			return
		}
		seen[filePath] = true
		items = append(items, uploadItem{FilePath: filePath, Key: objectKey(prefix, key)})
	}

	for _, p := range paths {
		if !strings.Contains(p, "*") {
			absPath, err := pathModifier.AbsPath(p)
			if err != nil {
				return nil, fmt.Errorf("resolve path %s: %w", p, err)
			}
			info, err := os.Stat(absPath)
			if err != nil {
				return nil, fmt.Errorf("upload path %s: %w", p, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("upload path %s is a directory, use a glob pattern to upload its content", p)
			}
			add(absPath, filepath.Base(absPath))
			continue
		}

		base, pattern := doublestar.SplitPattern(filepath.ToSlash(p))
		absBase, err := pathModifier.AbsPath(base)
		if err != nil {
			return nil, fmt.Errorf("resolve path %s: %w", base, err)
		}

		matches, err := doublestar.Glob(os.DirFS(absBase), pattern, doublestar.WithNoFollow(), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("path pattern %s: %w", p, err)
		}
		if len(matches) == 0 {
			logger.Warnf("No match for path pattern: %s", p)
			continue
		}

		for _, match := range matches {
			add(filepath.Join(absBase, filepath.FromSlash(match)), match)
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}
	return items, nil
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
