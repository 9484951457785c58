// Package zip streams generated project files as a zip archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

type File struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// Write archives files into w under root/. Names are cleaned so entries stay
// inside root, and a repeated name keeps its first occurrence.
func Write(w io.Writer, root string, files []File) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		name := entryName(root, f.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if !f.Modified.IsZero() {
			header.Modified = f.Modified
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := entry.Write(f.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	return zw.Close()
}

func entryName(root, name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return ""
	}
	if root == "" {
		return strings.TrimPrefix(cleaned, "/")
	}
	return path.Clean(root) + cleaned
}
