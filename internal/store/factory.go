package store

import (
	"context"
	"log"
	"strings"
)

// NewStore selects a backend: Postgres when DATABASE_URL is configured,
// otherwise the in-memory store.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		log.Printf("store: DATABASE_URL not set, using in-memory store")
		return NewInMemoryStore(), nil
	}
	s, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	log.Printf("store: using postgres")
	return s, nil
}
