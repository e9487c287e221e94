package sink

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/chatharvest/internal/chat"
	"github.com/ppiankov/chatharvest/internal/store"
)

// StoreSink writes entries into the SQLite store under one run.
type StoreSink struct {
	db    *store.Store
	runID string
	now   func() time.Time

	inserted int
}

// NewStore creates a sink that records entries under runID.
func NewStore(db *store.Store, runID string) (*StoreSink, error) {
	if db == nil {
		return nil, errors.New("store sink: store is required")
	}
	return &StoreSink{db: db, runID: runID, now: time.Now}, nil
}

func (s *StoreSink) Append(ctx context.Context, entries []chat.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	n, err := s.db.InsertEntries(ctx, s.runID, entries, s.now())
	if err != nil {
		return err
	}
	s.inserted += n
	return nil
}

// Inserted returns how many entries were new to the store.
func (s *StoreSink) Inserted() int {
	return s.inserted
}
