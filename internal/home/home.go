package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the rfptriage home directory.
	DefaultDirName = ".rfptriage"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// PIDFileName records the running server's process ID.
	PIDFileName = "rfptriage.pid"
)

// Dir represents the rfptriage home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.rfptriage).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DefraPath is bound into the DefraDB container as its data directory.
func (d *Dir) DefraPath() string {
	return filepath.Join(d.path, "defradb")
}

// UploadsDir holds spooled uploads while a request is in flight.
func (d *Dir) UploadsDir() string {
	return filepath.Join(d.path, "uploads")
}

// ExportsDir returns the directory for exported workbooks.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, "exports")
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// PIDPath returns the path to the server PID file.
func (d *Dir) PIDPath() string {
	return filepath.Join(d.path, PIDFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.DefraPath(), d.UploadsDir(), d.ExportsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ExportPath returns where the workbook for runID is written.
func (d *Dir) ExportPath(runID string) string {
	return filepath.Join(d.ExportsDir(), runID+".xlsx")
}
