// Package status tracks the outcome of reconciliation passes.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

// StatusPersistence defines the interface for pass status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the pass status
	SaveStatus(ctx context.Context, status *PassStatus) error

	// LoadStatus loads the pass status.
	// Returns an idle PassStatus if nothing was saved yet (first run)
	LoadStatus(ctx context.Context) (*PassStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	filePath string
}

// NewFileStatusPersistence creates a new file-based status persistence writing to filePath
func NewFileStatusPersistence(filePath string) StatusPersistence {
	return &fileStatusPersistence{
		filePath: filepath.Clean(filePath),
	}
}

// SaveStatus saves the pass status to a JSON file
func (f *fileStatusPersistence) SaveStatus(_ context.Context, status *PassStatus) error {
	if err := os.MkdirAll(filepath.Dir(f.filePath), 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	// Marshal status to JSON with pretty printing for readability
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := f.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	if err := os.Rename(tempPath, f.filePath); err != nil {
		// Clean up temp file on error
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}

	return nil
}

// LoadStatus loads the pass status from the JSON file
func (f *fileStatusPersistence) LoadStatus(_ context.Context) (*PassStatus, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist - this is OK for first run
			return &PassStatus{Phase: PassPhaseIdle}, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var status PassStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data: %w", err)
	}

	return &status, nil
}
