// Package importer finds bank return files waiting in the inbox and archives
// them once applied.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo describes a return file in the inbox.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// ProcessedDir is the inbox subdirectory applied files are moved to.
const ProcessedDir = "processed"

func isReturnFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".ret")
}

// Scan returns the return files in inbox, ordered by name. A missing inbox
// holds no files.
func Scan(inbox string) ([]FileInfo, error) {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading return inbox: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || !isReturnFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(inbox, e.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// MarkProcessed moves a file from the inbox to inbox/processed/. A file
// with the same name already archived is kept; the new one gets a numeric
// suffix.
func MarkProcessed(inbox, fileName string) (string, error) {
	src := filepath.Join(inbox, fileName)
	dstDir := filepath.Join(inbox, ProcessedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = filepath.Join(dstDir, fmt.Sprintf("%s.%d%s", base, n, ext))
	}

	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return dst, nil
}
