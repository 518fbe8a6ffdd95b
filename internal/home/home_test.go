package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-rfptriage")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-rfptriage" {
			t.Errorf("expected path /tmp/test-rfptriage, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-rfptriage")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DefraPath", dir.DefraPath(), "/tmp/test-rfptriage/defradb"},
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-rfptriage/config.yaml"},
		{"PIDPath", dir.PIDPath(), "/tmp/test-rfptriage/rfptriage.pid"},
		{"ExportPath", dir.ExportPath("bae-1"), "/tmp/test-rfptriage/exports/bae-1.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	dir, err := New(filepath.Join(t.TempDir(), "rfptriage-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("expected directory to not exist yet")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	if !dir.Exists() {
		t.Error("expected directory to exist")
	}
	for _, p := range []string{dir.DefraPath(), dir.UploadsDir(), dir.ExportsDir()} {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", p)
		}
	}
	// Idempotent.
	if err := dir.EnsureExists(); err != nil {
		t.Errorf("second EnsureExists() error = %v", err)
	}
}

func TestDir_ConfigExists(t *testing.T) {
	dir, _ := New(t.TempDir())
	if dir.ConfigExists() {
		t.Error("expected config to not exist")
	}
	if err := os.WriteFile(dir.ConfigPath(), []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !dir.ConfigExists() {
		t.Error("expected config to exist")
	}
}
