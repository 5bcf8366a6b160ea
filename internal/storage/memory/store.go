package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/convolens/internal/storage"
)

// Store is an in-memory implementation of InteractionStore. It keeps at most
// maxEntries interactions, dropping the oldest first.
type Store struct {
	mu           sync.RWMutex
	interactions []*storage.Interaction
	maxEntries   int
}

var _ storage.InteractionStore = (*Store)(nil)

// New creates a new in-memory store. maxEntries <= 0 means unbounded.
func New(maxEntries int) *Store {
	return &Store{maxEntries: maxEntries}
}

func (s *Store) SaveInteraction(ctx context.Context, interaction *storage.Interaction) error {
	if interaction == nil || interaction.ID == "" {
		return fmt.Errorf("interaction id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now()
	}
	cp := *interaction
	s.interactions = append(s.interactions, &cp)
	if s.maxEntries > 0 && len(s.interactions) > s.maxEntries {
		s.interactions = s.interactions[len(s.interactions)-s.maxEntries:]
	}
	return nil
}

func (s *Store) ListInteractions(ctx context.Context, opts storage.ListOptions) ([]*storage.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.Interaction
	for i := len(s.interactions) - 1; i >= 0; i-- {
		in := s.interactions[i]
		if opts.Purpose != "" && in.Purpose != opts.Purpose {
			continue
		}
		cp := *in
		result = append(result, &cp)
	}

	start := opts.Offset
	if start >= len(result) {
		return []*storage.Interaction{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) Close() error {
	return nil
}
