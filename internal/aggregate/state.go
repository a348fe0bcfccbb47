package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"ammcore/internal/storage"
	"ammcore/internal/storage/postgres"
)

// StateStore persists the last block whose events are fully aggregated.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, block uint64) error
}

// FileStateStore keeps progress in a local JSON file. Like the
// aggregator_state table, one file holds an entry per Name, so aggregators
// with different windows can share it.
type FileStateStore struct {
	Path string
	Name string
}

type progressEntry struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	entries, err := s.read()
	if err != nil {
		return 0, false, err
	}
	entry, ok := entries[s.Name]
	return entry.LastProcessedBlock, ok, nil
}

func (s *FileStateStore) Save(ctx context.Context, block uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[s.Name] = progressEntry{
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := storage.WriteFileAtomic(s.Path, data); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (s *FileStateStore) read() (map[string]progressEntry, error) {
	entries := make(map[string]progressEntry)
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("read progress: %w", err)
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse progress: %w", err)
	}
	return entries, nil
}

// DBStateStore keeps progress in the aggregator_state table under Name.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadProgress(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, block uint64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveProgress(ctx, s.Name, block)
}
