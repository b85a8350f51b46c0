package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/accrual-runner/internal/jsonx"
	"github.com/accrual-runner/internal/models"
)

// FileBackend stores one indented JSON file per identifier
type FileBackend struct {
	dir string
}

// NewFileBackend creates a file backend rooted at dir
func NewFileBackend(dir string) *FileBackend {
	if dir == "" {
		dir = "."
	}
	return &FileBackend{dir: dir}
}

// Name implements SessionBackend
func (b *FileBackend) Name() string { return "file" }

// Path returns the session file for identifier
func (b *FileBackend) Path(identifier string) string {
	return filepath.Join(b.dir, fmt.Sprintf("session_%s.json", identifier))
}

// Read implements SessionBackend
func (b *FileBackend) Read(ctx context.Context, identifier string) (*models.SessionRecord, error) {
	if err := validateIdentifier(identifier); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.Path(identifier))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var record models.SessionRecord
	if err := jsonx.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return &record, nil
}

// Write implements SessionBackend. The file is replaced atomically.
func (b *FileBackend) Write(ctx context.Context, identifier string, record *models.SessionRecord) error {
	if err := validateIdentifier(identifier); err != nil {
		return err
	}

	data, err := jsonx.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, fmt.Sprintf(".session_%s-*.tmp", identifier))
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpName, b.Path(identifier)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
