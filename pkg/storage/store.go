package storage

import (
	"context"
	"errors"

	"github.com/opscart/vm-reclaim/pkg/models"
)

// ErrNotFound is returned when a reclamation does not exist
var ErrNotFound = errors.New("reclamation not found")

// Store persists classification results. Samples are never stored.
type Store interface {
	SaveReclamation(ctx context.Context, rec *models.Reclamation) error
	GetReclamation(ctx context.Context, id string) (*models.Reclamation, error)
	// ListReclamations returns the newest results first, optionally for
	// one session only; an empty sessionID lists all sessions and a limit
	// <= 0 returns every row
	ListReclamations(ctx context.Context, sessionID string, limit int) ([]*models.Reclamation, error)

	Ping(ctx context.Context) error
	Close() error
}
