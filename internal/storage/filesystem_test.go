package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"genesis/internal/domain"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "projects/p-1/main.go", want: "projects/p-1/main.go"},
		{key: "/projects//p-1/./main.go", want: "projects/p-1/main.go"},
		{key: `projects\p-1\main.go`, want: "projects/p-1/main.go"},
		{key: "projects/p-1/../../etc/passwd", want: "etc/passwd"},
		{key: "../secret", wantErr: true},
		{key: "..", wantErr: true},
		{key: "  ", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			got, err := sanitizeKey(tc.key)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestWriteProject(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	files := []domain.GeneratedFile{
		{Name: "main.go", Content: "package main", Language: "go"},
		{Name: "web/index.html", Content: "<html></html>", Language: "html"},
	}
	keys, err := store.WriteProject(context.Background(), "p-1", files)
	if err != nil {
		t.Fatalf("write project: %v", err)
	}
	if len(keys) != 2 || keys[1] != "projects/p-1/web/index.html" {
		t.Fatalf("keys = %v", keys)
	}
	data, err := os.ReadFile(filepath.Join(dir, "projects", "p-1", "main.go"))
	if err != nil || string(data) != "package main" {
		t.Fatalf("read back = %q, %v", data, err)
	}

	got, err := store.Read(context.Background(), keys[1])
	if err != nil || string(got) != "<html></html>" {
		t.Fatalf("Read = %q, %v", got, err)
	}
	if _, err := store.Read(context.Background(), "projects/p-1/missing.txt"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing read err = %v, want ErrNotFound", err)
	}
}

func TestProjectKey(t *testing.T) {
	tests := []struct {
		id      string
		name    string
		want    string
		wantErr bool
	}{
		{id: "p-1", name: "main.go", want: "projects/p-1/main.go"},
		{id: "p-1", name: "src/../main.go", want: "projects/p-1/main.go"},
		{id: "p-1", name: "/abs/main.go", want: "projects/p-1/abs/main.go"},
		{id: "p-1", name: "../other-id/x", wantErr: true},
		{id: "p-1", name: `..\other-id\x`, wantErr: true},
		{id: "p-1", name: "..", wantErr: true},
		{id: "p-1", name: "", wantErr: true},
		{id: "../p-2", name: "x", wantErr: true},
		{id: "", name: "x", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.id+"/"+tc.name, func(t *testing.T) {
			got, err := ProjectKey(tc.id, tc.name)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ProjectKey(%q, %q) = %q, want error", tc.id, tc.name, got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("ProjectKey(%q, %q) = %q, %v; want %q", tc.id, tc.name, got, err, tc.want)
			}
		})
	}
}

func TestWriteProjectStaysInsideProject(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	files := []domain.GeneratedFile{
		{Name: "main.go", Content: "package main"},
		{Name: "../other-id/x", Content: "overwrite"},
	}
	keys, err := store.WriteProject(context.Background(), "p-1", files)
	if err == nil {
		t.Fatalf("expected error for escaping file name")
	}
	if len(keys) != 1 || keys[0] != "projects/p-1/main.go" {
		t.Fatalf("keys = %v", keys)
	}
	if _, err := os.Stat(filepath.Join(dir, "projects", "other-id", "x")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file written into another project: %v", err)
	}
}
