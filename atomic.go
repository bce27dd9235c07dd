package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteJSON writes JSON data atomically using temp file + rename
func AtomicWriteJSON(path string, data any) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonData = append(jsonData, '\n')

	return AtomicWriteFile(path, jsonData)
}

// AtomicWriteFile writes data atomically using temp file + rename.
// Readers of path never observe a partially written artifact.
func AtomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// The temp name must not look like a numbered artifact, or a crash
	// here would reserve a sequence number on the next run.
	tmpPath := filepath.Join(dir, ".tmp-"+filepath.Base(path))
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if filepath.Ext(path) == ".json" {
		var js json.RawMessage
		if err := json.Unmarshal(data, &js); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// moveFile renames src to dst, falling back to copy+remove when the two
// live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := AtomicWriteFile(dst, data); err != nil {
		return err
	}
	return os.Remove(src)
}
