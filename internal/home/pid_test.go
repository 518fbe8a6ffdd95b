package home

import (
	"errors"
	"os"
	"strconv"
	"testing"
)

func TestClaimPID(t *testing.T) {
	dir, _ := New(t.TempDir())

	if pid := dir.ServerPID(); pid != 0 {
		t.Fatalf("ServerPID() = %d before claim", pid)
	}
	if err := dir.ClaimPID(); err != nil {
		t.Fatalf("ClaimPID() error = %v", err)
	}
	if pid := dir.ServerPID(); pid != os.Getpid() {
		t.Errorf("ServerPID() = %d, want %d", pid, os.Getpid())
	}
	// Reclaiming our own PID is allowed.
	if err := dir.ClaimPID(); err != nil {
		t.Errorf("second ClaimPID() error = %v", err)
	}

	dir.ReleasePID()
	if _, err := os.Stat(dir.PIDPath()); !os.IsNotExist(err) {
		t.Error("ReleasePID() should remove the file")
	}
}

func TestClaimPIDLiveOwner(t *testing.T) {
	dir, _ := New(t.TempDir())
	// The parent process (the test runner) is alive and is not us.
	if err := os.WriteFile(dir.PIDPath(), []byte(strconv.Itoa(os.Getppid())), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := dir.ClaimPID(); !errors.Is(err, ErrServerRunning) {
		t.Errorf("ClaimPID() error = %v, want ErrServerRunning", err)
	}
	dir.ReleasePID()
	if _, err := os.Stat(dir.PIDPath()); err != nil {
		t.Error("ReleasePID() removed another process's file")
	}
}

func TestClaimPIDStale(t *testing.T) {
	dir, _ := New(t.TempDir())
	if err := os.WriteFile(dir.PIDPath(), []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := dir.ReadPID(); err == nil {
		t.Error("ReadPID() accepted garbage")
	}
	if err := dir.ClaimPID(); err != nil {
		t.Errorf("ClaimPID() over stale file error = %v", err)
	}
}
