package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("interview not found")

// Interview is a persisted mock-interview document. Questions are generated
// ahead of time by the web app and are immutable once the document exists.
type Interview struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Techstack []string  `json:"techstack"`
	Questions []string  `json:"questions"`
	Finalized bool      `json:"finalized"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves interview documents. Questions is the narrow
// read path the relay uses; the REST surface uses the rest.
type Store interface {
	Create(ctx context.Context, interview Interview) (Interview, error)
	Get(ctx context.Context, id string) (Interview, error)
	ListByUser(ctx context.Context, userID string) ([]Interview, error)
	Questions(ctx context.Context, id string) ([]string, error)
	Close() error
}
