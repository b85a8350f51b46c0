// Package storage provides session persistence for account workers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/accrual-runner/internal/errors"
	"github.com/accrual-runner/internal/logging"
	"github.com/accrual-runner/internal/models"
)

// ErrSessionNotFound is returned by backends when no record exists
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidIdentifier is returned for identifiers that cannot key a record
var ErrInvalidIdentifier = errors.New("invalid identifier")

// SessionBackend reads and writes raw session records
type SessionBackend interface {
	Read(ctx context.Context, identifier string) (*models.SessionRecord, error)
	Write(ctx context.Context, identifier string, record *models.SessionRecord) error
	Name() string
}

// SessionStore applies the persistence policy on top of a backend: loads
// never fail (bad data reads as absent) and saves never interrupt callers.
type SessionStore struct {
	backend SessionBackend
}

// NewSessionStore creates a session store over backend
func NewSessionStore(backend SessionBackend) *SessionStore {
	return &SessionStore{backend: backend}
}

// Backend returns the underlying backend
func (s *SessionStore) Backend() SessionBackend {
	return s.backend
}

// Load returns the persisted record for identifier. Missing, unreadable or
// malformed data reports false.
func (s *SessionStore) Load(ctx context.Context, identifier string) (*models.SessionRecord, bool) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"backend": s.backend.Name(),
	})

	record, err := s.backend.Read(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			logger.Debug("No previous session")
		} else {
			logger.WithError(err).Warn("Previous session unreadable, starting fresh")
		}
		return nil, false
	}

	if err := record.Validate(); err != nil {
		logger.WithError(err).Warn("Previous session malformed, starting fresh")
		return nil, false
	}

	return record, true
}

// Save persists record. Failures are logged and swallowed; the in-memory
// state stays authoritative until the next successful save.
func (s *SessionStore) Save(ctx context.Context, identifier string, record *models.SessionRecord) {
	if err := s.backend.Write(ctx, identifier, record); err != nil {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"backend": s.backend.Name(),
		}).WithError(apperrors.NewIOError("save session", err)).Error("Failed to save session")
	}
}

// validateIdentifier rejects identifiers that could escape a key namespace
func validateIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if strings.ContainsAny(identifier, "/\\\x00") || strings.Contains(identifier, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}
	return nil
}
