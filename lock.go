package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// lockFileName sits in the artifacts root. It is not numbered, so the
// sequence scan never sees it.
const lockFileName = "parkpay.lock"

// LockInfo describes the run holding the artifacts tree.
type LockInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
	RunID     string    `json:"runId"`
	Driver    string    `json:"driver"`
}

// LockFile serializes runs sharing an artifacts tree. Two processes seeding
// the sequence counter from the same directories would hand out the same
// numbers.
type LockFile struct {
	path string
	info *LockInfo
}

func NewLockFile(artifactsRoot string) *LockFile {
	return &LockFile{path: filepath.Join(artifactsRoot, lockFileName)}
}

// Acquire takes the lock, clearing a stale one first.
func (lf *LockFile) Acquire(runID, driver string) error {
	if err := os.MkdirAll(filepath.Dir(lf.path), 0755); err != nil {
		return fmt.Errorf("failed to create artifacts directory: %w", err)
	}

	if lf.isHeld() {
		existing, err := lf.readLock()
		if err != nil {
			os.Remove(lf.path)
		} else if isLockStale(existing) {
			fmt.Printf("Removing stale lock (PID %d no longer running or lock too old)\n", existing.PID)
			if err := os.Remove(lf.path); err != nil {
				return fmt.Errorf("failed to remove stale lock: %w", err)
			}
		} else {
			return fmt.Errorf("another run is using %s (PID %d, run %s)\nStarted at: %s",
				filepath.Dir(lf.path), existing.PID, existing.RunID, existing.StartedAt.Format(time.RFC3339))
		}
	}

	lf.info = &LockInfo{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		RunID:     runID,
		Driver:    driver,
	}

	data, err := json.MarshalIndent(lf.info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}
	data = append(data, '\n')

	// O_EXCL makes creation atomic.
	f, err := os.OpenFile(lf.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("another run is using %s (lock acquired by another process)", filepath.Dir(lf.path))
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lf.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Release removes the lock if this process still owns it.
func (lf *LockFile) Release() error {
	if lf.info == nil {
		return nil
	}
	existing, err := lf.readLock()
	if err != nil {
		return nil
	}
	if existing.PID != os.Getpid() {
		return nil
	}
	lf.info = nil
	return os.Remove(lf.path)
}

func (lf *LockFile) isHeld() bool {
	_, err := os.Stat(lf.path)
	return err == nil
}

func (lf *LockFile) readLock() (*LockInfo, error) {
	data, err := os.ReadFile(lf.path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes for existence.
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// maxLockAge caps a lock's life even if its PID is alive, since PIDs get
// reused.
const maxLockAge = 24 * time.Hour

func isLockStale(info *LockInfo) bool {
	if !isProcessAlive(info.PID) {
		return true
	}
	return time.Since(info.StartedAt) > maxLockAge
}

// ReadLockStatus returns the live lock on artifactsRoot, or nil.
func ReadLockStatus(artifactsRoot string) (*LockInfo, error) {
	lf := NewLockFile(artifactsRoot)
	if !lf.isHeld() {
		return nil, nil
	}
	info, err := lf.readLock()
	if err != nil {
		return nil, err
	}
	if isLockStale(info) {
		return nil, nil
	}
	return info, nil
}
