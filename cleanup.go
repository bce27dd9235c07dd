package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
)

// CleanupCoordinator tears a run down when it is interrupted. Parts
// register themselves when created; Cleanup flushes in-flight artifacts,
// closes the browser and releases the lock, even on the os.Exit path.
type CleanupCoordinator struct {
	mu       sync.Mutex
	recorder *Recorder
	driver   Driver
	lock     *LockFile
	logger   *log.Logger
	done     bool
}

func NewCleanupCoordinator(logger *log.Logger) *CleanupCoordinator {
	if logger == nil {
		logger = discardLogger()
	}
	return &CleanupCoordinator{logger: logger}
}

// SetRecorder registers the recorder whose pending records get flushed.
func (c *CleanupCoordinator) SetRecorder(r *Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// SetDriver registers the browser driver to close.
func (c *CleanupCoordinator) SetDriver(d Driver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.driver = d
}

// SetLock registers the run lock to release.
func (c *CleanupCoordinator) SetLock(lf *LockFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lock = lf
}

// Cleanup is idempotent.
func (c *CleanupCoordinator) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return
	}
	c.done = true

	// Records still in flight resolve with an unknown outcome.
	if c.recorder != nil {
		for _, d := range c.recorder.FlushPending() {
			c.logger.Warn("flushed interrupted test", "test", d.TestID, "seq", d.Seq, "outcome", d.Outcome)
		}
	}

	if c.driver != nil {
		if err := c.driver.Close(); err != nil {
			c.logger.Debug("driver close failed", "err", err)
		}
		c.driver = nil
	}

	// Release lock last
	if c.lock != nil {
		c.lock.Release()
	}
}

// HandleSignals runs Cleanup and exits on SIGINT or SIGTERM. The returned
// function stops listening.
func (c *CleanupCoordinator) HandleSignals() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			c.logger.Warn("interrupted, flushing artifacts", "signal", sig)
			c.Cleanup()
			os.Exit(130)
		case <-stop:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(stop)
		})
	}
}
